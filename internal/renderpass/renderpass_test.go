package renderpass

import "testing"

func TestColorPass(t *testing.T) {
	tests := []struct {
		name string
		pass Pass
		want Pass
		ok   bool
	}{
		{"diffuse direct", DiffuseDirect, DiffuseColor, true},
		{"glossy indirect", GlossyIndirect, GlossyColor, true},
		{"transmission direct", TransmissionDirect, TransmissionColor, true},
		{"color has no mask", DiffuseColor, "", false},
		{"volume has no color", VolumeDirect, "", false},
		{"normal", Normal, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got, ok = tt.pass.ColorPass()
			if got != tt.want || ok != tt.ok {
				t.Errorf("ColorPass(%v) = %v, %v want %v, %v", tt.pass, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLightPathParts(t *testing.T) {
	var color, direct, indirect, ok = LightPathParts(Subsurface)
	if !ok || color != SubsurfaceColor || direct != SubsurfaceDirect || indirect != SubsurfaceIndirect {
		t.Errorf("LightPathParts(Subsurface) = %v %v %v %v", color, direct, indirect, ok)
	}
	if _, _, _, ok = LightPathParts(Emission); ok {
		t.Error("Emission is not a combined light path")
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("Diffuse Color"); err != nil {
		t.Error(err)
	}
	if _, err := Parse("Diffuse Colour"); err == nil {
		t.Error("expected unknown pass error")
	}
	if _, err := ParseLightPath("Glossy"); err != nil {
		t.Error(err)
	}
	if _, err := ParseLightPath("Glossy Color"); err == nil {
		t.Error("expected unknown light path error")
	}
}

func TestKeys(t *testing.T) {
	if got := SourceKey(Normal, 3); got != "Normal_source_3" {
		t.Errorf("SourceKey = %v", got)
	}
	if got := TargetKey(DiffuseColor); got != "Diffuse Color_target" {
		t.Errorf("TargetKey = %v", got)
	}
	if got := MeanName("Combined", true); got != "Combined/masked_mean" {
		t.Errorf("MeanName = %v", got)
	}
}
