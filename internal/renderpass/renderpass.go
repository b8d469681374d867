// Package renderpass is the registry of render passes known to the denoiser.
// Every feature name in a configuration is resolved here; joins between
// passes (a direct pass and its color pass, a combined pass and its three
// parts) go through the registry instead of string manipulation.
package renderpass

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Pass string

const (
	Combined          Pass = "Combined"
	Alpha             Pass = "Alpha"
	Depth             Pass = "Depth"
	Normal            Pass = "Normal"
	ScreenSpaceNormal Pass = "Screen Space Normal"
	AmbientOcclusion  Pass = "AO"

	DiffuseDirect   Pass = "Diffuse Direct"
	DiffuseIndirect Pass = "Diffuse Indirect"
	DiffuseColor    Pass = "Diffuse Color"

	GlossyDirect   Pass = "Glossy Direct"
	GlossyIndirect Pass = "Glossy Indirect"
	GlossyColor    Pass = "Glossy Color"

	SubsurfaceDirect   Pass = "Subsurface Direct"
	SubsurfaceIndirect Pass = "Subsurface Indirect"
	SubsurfaceColor    Pass = "Subsurface Color"

	TransmissionDirect   Pass = "Transmission Direct"
	TransmissionIndirect Pass = "Transmission Indirect"
	TransmissionColor    Pass = "Transmission Color"

	VolumeDirect   Pass = "Volume Direct"
	VolumeIndirect Pass = "Volume Indirect"

	Emission    Pass = "Emit"
	Environment Pass = "Environment"
)

// Light paths that are reconstructed as color * (direct + indirect).
const (
	Diffuse      Pass = "Diffuse"
	Glossy       Pass = "Glossy"
	Subsurface   Pass = "Subsurface"
	Transmission Pass = "Transmission"
)

type passInfo struct {
	rgb      bool
	lightOf  Pass // combined light path a direct/indirect/color pass belongs to
	isDirect bool
	isIndir  bool
	isColor  bool
}

var registry = map[Pass]passInfo{
	Combined:          {rgb: true},
	Alpha:             {},
	Depth:             {},
	Normal:            {},
	ScreenSpaceNormal: {},
	AmbientOcclusion:  {},

	DiffuseDirect:   {rgb: true, lightOf: Diffuse, isDirect: true},
	DiffuseIndirect: {rgb: true, lightOf: Diffuse, isIndir: true},
	DiffuseColor:    {rgb: true, lightOf: Diffuse, isColor: true},

	GlossyDirect:   {rgb: true, lightOf: Glossy, isDirect: true},
	GlossyIndirect: {rgb: true, lightOf: Glossy, isIndir: true},
	GlossyColor:    {rgb: true, lightOf: Glossy, isColor: true},

	SubsurfaceDirect:   {rgb: true, lightOf: Subsurface, isDirect: true},
	SubsurfaceIndirect: {rgb: true, lightOf: Subsurface, isIndir: true},
	SubsurfaceColor:    {rgb: true, lightOf: Subsurface, isColor: true},

	TransmissionDirect:   {rgb: true, lightOf: Transmission, isDirect: true},
	TransmissionIndirect: {rgb: true, lightOf: Transmission, isIndir: true},
	TransmissionColor:    {rgb: true, lightOf: Transmission, isColor: true},

	// Volume has no color pass, so it never gets a mask.
	VolumeDirect:   {rgb: true},
	VolumeIndirect: {rgb: true},

	Emission:    {rgb: true},
	Environment: {rgb: true},
}

type lightPath struct {
	color, direct, indirect Pass
}

var lightPaths = map[Pass]lightPath{
	Diffuse:      {DiffuseColor, DiffuseDirect, DiffuseIndirect},
	Glossy:       {GlossyColor, GlossyDirect, GlossyIndirect},
	Subsurface:   {SubsurfaceColor, SubsurfaceDirect, SubsurfaceIndirect},
	Transmission: {TransmissionColor, TransmissionDirect, TransmissionIndirect},
}

// Parse resolves a configuration name against the registry.
func Parse(name string) (Pass, error) {
	var p = Pass(name)
	if _, ok := registry[p]; !ok {
		return "", fmt.Errorf("unknown render pass %q", name)
	}
	return p, nil
}

// ParseLightPath resolves the name of a combined light-path feature.
func ParseLightPath(name string) (Pass, error) {
	var p = Pass(name)
	if _, ok := lightPaths[p]; !ok {
		return "", fmt.Errorf("unknown combined light path %q", name)
	}
	return p, nil
}

// Passes returns the registry vocabulary in sorted order.
func Passes() []Pass {
	var result = make([]Pass, 0, len(registry))
	for p := range registry {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (p Pass) String() string { return string(p) }

func (p Pass) IsRGB() bool { return registry[p].rgb }

// IsDirectOrIndirect reports passes that carry a light-path mask.
func (p Pass) IsDirectOrIndirect() bool {
	var info = registry[p]
	return info.isDirect || info.isIndir
}

// ColorPass returns the color pass paired with a direct or indirect pass.
func (p Pass) ColorPass() (Pass, bool) {
	if !p.IsDirectOrIndirect() {
		return "", false
	}
	return lightPaths[registry[p].lightOf].color, true
}

// LightPathParts returns color, direct and indirect passes of a combined light path.
func LightPathParts(combined Pass) (color, direct, indirect Pass, ok bool) {
	var lp, found = lightPaths[combined]
	if !found {
		return "", "", "", false
	}
	return lp.color, lp.direct, lp.indirect, true
}

// ImageParts are the contributions summed into the final image, in order:
// four combined light paths followed by emission and environment.
var ImageParts = [6]Pass{Diffuse, Glossy, Subsurface, Transmission, Emission, Environment}

// Record keys.

func SourceKey(p Pass, index int) string {
	return string(p) + "_source_" + strconv.Itoa(index)
}

func TargetKey(p Pass) string {
	return string(p) + "_target"
}

func PredictionKey(p Pass) string {
	return string(p) + "_prediction"
}

// Metric names.

func metricName(name string, metric string, masked bool) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString("/")
	if masked {
		sb.WriteString("masked_")
	}
	sb.WriteString(metric)
	return sb.String()
}

func MeanName(name string, masked bool) string      { return metricName(name, "mean", masked) }
func VariationName(name string, masked bool) string { return metricName(name, "variation", masked) }
func MSSSIMName(name string, masked bool) string    { return metricName(name, "ms_ssim", masked) }
func DifferenceName(name string, masked bool) string {
	return metricName(name, "difference", masked)
}
func VariationDifferenceName(name string, masked bool) string {
	return metricName(name, "variation_difference", masked)
}
