package envutil

import (
	"testing"
	"time"
)

func TestTypedReadersFallBackOnGarbage(t *testing.T) {
	t.Setenv("PP_INT", "nope")
	t.Setenv("PP_FLOAT", "1.5")
	t.Setenv("PP_BOOL", "off")
	t.Setenv("PP_SECS", "45")
	if got := Int("PP_INT", 7); got != 7 {
		t.Fatalf("Int: want=%d got=%d", 7, got)
	}
	if got := Float("PP_FLOAT", 0); got != 1.5 {
		t.Fatalf("Float: want=%v got=%v", 1.5, got)
	}
	if got := Bool("PP_BOOL", true); got {
		t.Fatalf("Bool: want=false got=true")
	}
	if got := Seconds("PP_SECS", time.Second); got != 45*time.Second {
		t.Fatalf("Seconds: want=%s got=%s", 45*time.Second, got)
	}
}

func TestPairs(t *testing.T) {
	t.Setenv("PP_PAIRS", "image_generation=http://img:8080, bad ,music_generation=http://music")
	got := Pairs("PP_PAIRS")
	if len(got) != 2 {
		t.Fatalf("Pairs: want 2 entries got=%v", got)
	}
	if got["image_generation"] != "http://img:8080" {
		t.Fatalf("Pairs: image_generation=%q", got["image_generation"])
	}
}

func TestList(t *testing.T) {
	t.Setenv("PP_LIST", " https://a.example.com, ,https://b.example.com ")
	got := List("PP_LIST")
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("List: got=%v", got)
	}
	if got := List("PP_LIST_UNSET"); got != nil {
		t.Fatalf("List unset: want=nil got=%v", got)
	}
}
