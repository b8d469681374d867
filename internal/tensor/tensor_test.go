package tensor

import "testing"

func sequence(n, h, w, c int) *Tensor {
	var t = New(n, h, w, c)
	for i := range t.Data {
		t.Data[i] = float64(i)
	}
	return t
}

func TestConcatSplit(t *testing.T) {
	var a = sequence(2, 3, 4, 3)
	var b = sequence(2, 3, 4, 1).AddConst(100)
	var c = sequence(2, 3, 4, 2).AddConst(200)
	var joined = Concat(a, b, c)
	if joined.C() != 6 {
		t.Fatalf("channels = %v", joined.C())
	}
	if got := joined.At(1, 2, 3, 3); got != b.At(1, 2, 3, 0) {
		t.Errorf("joined channel 3 = %v want %v", got, b.At(1, 2, 3, 0))
	}
	var parts = Split(joined, []int{3, 1, 2})
	for i, want := range []*Tensor{a, b, c} {
		if !parts[i].SameShape(want) {
			t.Fatalf("part %d shape %v want %v", i, parts[i].Shape, want.Shape)
		}
		for j := range want.Data {
			if parts[i].Data[j] != want.Data[j] {
				t.Fatalf("part %d differs at %d", i, j)
			}
		}
	}
}

func TestTransposeRoundTrip(t *testing.T) {
	var a = sequence(2, 3, 5, 4)
	var first = Transpose(a, ChannelsFirst)
	if first.Shape != [4]int{2, 4, 3, 5} {
		t.Fatalf("shape = %v", first.Shape)
	}
	if first.N() != 2 || first.H() != 3 || first.W() != 5 || first.C() != 4 {
		t.Errorf("accessors %v %v %v %v", first.N(), first.H(), first.W(), first.C())
	}
	var back = Transpose(first, ChannelsLast)
	if !back.SameShape(a) {
		t.Fatalf("shape = %v", back.Shape)
	}
	for i := range a.Data {
		if a.Data[i] != back.Data[i] {
			t.Fatalf("differs at %d", i)
		}
	}
}

func TestRotate90(t *testing.T) {
	var a = sequence(1, 2, 3, 1)
	var r = Rotate90(a, 1)
	if r.Shape != [4]int{1, 3, 2, 1} {
		t.Fatalf("shape = %v", r.Shape)
	}
	// top-right corner moves to top-left
	if r.At(0, 0, 0, 0) != a.At(0, 0, 2, 0) {
		t.Errorf("got %v want %v", r.At(0, 0, 0, 0), a.At(0, 0, 2, 0))
	}
	var full = Rotate90(a, 4)
	for i := range a.Data {
		if full.Data[i] != a.Data[i] {
			t.Fatalf("four rotations differ at %d", i)
		}
	}
}

func TestFlipAndPermute(t *testing.T) {
	var a = sequence(1, 2, 3, 3)
	var f = FlipLeftRight(FlipLeftRight(a))
	for i := range a.Data {
		if f.Data[i] != a.Data[i] {
			t.Fatalf("double flip differs at %d", i)
		}
	}
	var p = PermuteChannels(a, []int{2, 0, 1})
	if p.At(0, 1, 1, 0) != a.At(0, 1, 1, 2) || p.At(0, 1, 1, 1) != a.At(0, 1, 1, 0) {
		t.Errorf("permutation wrong")
	}
}

func TestMulChannels(t *testing.T) {
	var a = Full(1, 2, 2, 3, 2)
	var mask = FromData(1, 2, 2, 1, []float64{1, 0, 0, 1})
	var got = MulChannels(a, mask)
	if Sum(got) != 12 {
		t.Errorf("sum = %v", Sum(got))
	}
}

func TestParseDataFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    DataFormat
		wantErr bool
	}{
		{"", ChannelsLast, false},
		{"channels_last", ChannelsLast, false},
		{"channels_first", ChannelsFirst, false},
		{"nchw", ChannelsLast, true},
	}
	for _, tt := range tests {
		var got, err = ParseDataFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDataFormat(%q) = %v, %v", tt.in, got, err)
		}
	}
}
