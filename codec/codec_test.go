package codec

import (
	"bytes"
	"io"
	"testing"
)

type testData struct {
	Map map[string]bool
	Arr []int
}

func roundtrip(t *testing.T, c Codec) {
	t.Helper()
	var buf bytes.Buffer

	if err := c.Encoder(&buf).Encode(testData{
		Map: map[string]bool{"true": true, "false": false},
		Arr: []int{1, 2, 3},
	}); err != nil {
		t.Fatal(err)
	}

	var data testData
	if err := c.Decoder(&buf).Decode(&data); err != nil {
		t.Fatal(err)
	}

	if data.Map["true"] != true || data.Arr[2] != 3 {
		t.Fatal("unexpected data:", data)
	}
}

func TestJSONCodec(t *testing.T) {
	roundtrip(t, JSONCodec{})
}

func TestCBORCodec(t *testing.T) {
	roundtrip(t, CBORCodec{})
}

func TestFrameCodecSequence(t *testing.T) {
	c := &FrameCodec{Codec: JSONCodec{}}
	r, w := io.Pipe()

	go func() {
		enc := c.Encoder(w)
		for _, s := range []string{"one", "two", "three"} {
			if err := enc.Encode(s); err != nil {
				w.CloseWithError(err)
				return
			}
		}
		w.Close()
	}()

	dec := c.Decoder(r)
	var got []string
	for {
		var s string
		if err := dec.Decode(&s); err != nil {
			if err != io.EOF {
				t.Fatal(err)
			}
			break
		}
		got = append(got, s)
	}
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Fatal("unexpected frames:", got)
	}
}

func TestFrameCodecOversize(t *testing.T) {
	c := &FrameCodec{Codec: JSONCodec{}}
	b := []byte{0xff, 0xff, 0xff, 0xff}
	var v interface{}
	if err := c.Decoder(bytes.NewReader(b)).Decode(&v); err == nil {
		t.Fatal("expected error for oversized frame")
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "json", "cbor"} {
		c, err := ByName(name)
		if err != nil {
			t.Fatal(err)
		}
		b, err := Marshal(c, map[string]int{"n": 7})
		if err != nil {
			t.Fatal(err)
		}
		var out map[string]int
		if err := Unmarshal(c, b, &out); err != nil {
			t.Fatal(err)
		}
		if out["n"] != 7 {
			t.Fatalf("%s: unexpected value: %#v", name, out)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}
