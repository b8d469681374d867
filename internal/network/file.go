package network

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Binary layout of a parameter file:
// - All the data is stored in little-endian layout
// - The magic number/version consists of 4 bytes:
//   - 66 (which is the ASCII code for B), uint8
//   - 90 (which is the ASCII code for Z), uint8
//   - 2 The major part of the current version number, uint8
//   - 0 The minor part of the current version number, uint8
//
// - 4 bytes (uint32) to denote the parameter set ID
// - 4 bytes (uint32) to denote input size
// - 4 bytes (uint32) to denote output size
// - 4 bytes (uint32) number of hidden layers
// - 4 bytes (uint32) for the size of each hidden layer
// - All weights for a layer as float32, followed by all the biases of the same layer
// - Other layers follow just like the above point
//
// Save writes a temporary file next to file and renames it over file, so an
// interrupted save leaves the previous content in place.
func (p *Parameters) Save(file string) error {
	var tmp = file + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	defer f.Close()

	var w = bufio.NewWriter(f)
	err = p.write(w)
	if err != nil {
		return err
	}
	err = w.Flush()
	if err != nil {
		return err
	}
	err = f.Sync()
	if err != nil {
		return err
	}
	err = f.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp, file)
}

func (p *Parameters) write(w io.Writer) error {
	// Write headers
	buf := []byte{66, 90, 2, 0}
	_, err := w.Write(buf)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(buf, p.Id)
	_, err = w.Write(buf)
	if err != nil {
		return err
	}

	var hidden = p.Topology.HiddenNeurons
	buf = make([]byte, 3*4+4*len(hidden))
	binary.LittleEndian.PutUint32(buf[0:], p.Topology.Inputs)
	binary.LittleEndian.PutUint32(buf[4:], p.Topology.Outputs)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(hidden)))
	for i := range hidden {
		binary.LittleEndian.PutUint32(buf[12+4*i:], hidden[i])
	}
	_, err = w.Write(buf)
	if err != nil {
		return err
	}

	return writeSlice(w, p.Data)
}

// LoadParameters reads a file written by Parameters.Save.
func LoadParameters(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readParameters(bufio.NewReader(f))
}

func readParameters(r io.Reader) (*Parameters, error) {
	buf := make([]byte, 4)
	_, err := io.ReadFull(r, buf)
	if err != nil {
		return nil, err
	}
	if buf[0] != 66 || buf[1] != 90 {
		return nil, fmt.Errorf("magic word does not match expected")
	}
	if buf[2] != 2 || buf[3] != 0 {
		return nil, fmt.Errorf("parameter file version %d.%d is not supported", buf[2], buf[3])
	}

	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, err
	}
	id := binary.LittleEndian.Uint32(buf)

	buf = make([]byte, 12)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, err
	}
	inputs := binary.LittleEndian.Uint32(buf[:4])
	outputs := binary.LittleEndian.Uint32(buf[4:8])
	layers := binary.LittleEndian.Uint32(buf[8:])
	if layers > 1024 {
		return nil, fmt.Errorf("parameter file has %d hidden layers", layers)
	}

	buf = make([]byte, 4*layers)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, err
	}
	neurons := make([]uint32, layers)
	for i := uint32(0); i < layers; i++ {
		neurons[i] = binary.LittleEndian.Uint32(buf[i*4 : (i+1)*4])
	}

	var p = &Parameters{
		Id:       id,
		Topology: NewTopology(inputs, outputs, neurons),
	}
	p.Data = make([]float64, p.Topology.Size())
	buf = make([]byte, 4)
	for j := range p.Data {
		_, err := io.ReadFull(r, buf)
		if err != nil {
			return nil, err
		}
		p.Data[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	}
	return p, nil
}

func writeSlice(w io.Writer, data []float64) error {
	buf := make([]byte, 4)
	for j := range data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(data[j])))
		_, err := w.Write(buf)
		if err != nil {
			return err
		}
	}
	return nil
}
