package validate

import (
	"errors"
	"testing"
)

var cands = map[int64]bool{1: true, 2: true, 3: true}

func TestParseDropsUnknownIDs(t *testing.T) {
	raw := `{"items":[
		{"problemId":1,"reason":"a","confidence":0.9,"strategy":"weakness_focus","score":0.9},
		{"problemId":99,"reason":"b","confidence":0.8,"strategy":"weakness_focus","score":0.8},
		{"problemId":2,"reason":"c","confidence":0.7,"strategy":"topic_coverage"}
	]}`
	res, err := Parse(raw, map[int64]bool{1: true, 2: true}, 10)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Items) != 2 || res.Items[0].ProblemID != 1 || res.Items[1].ProblemID != 2 {
		t.Fatalf("items=%+v", res.Items)
	}
	if res.Dropped != 1 || res.Received != 3 {
		t.Fatalf("dropped=%d received=%d", res.Dropped, res.Received)
	}
	if res.Items[1].Score != 0.7 {
		t.Fatalf("score should default to confidence: %v", res.Items[1].Score)
	}
}

func TestParseExtractionOrder(t *testing.T) {
	cases := map[string]string{
		"fenced":   "Here you go:\n```json\n{\"items\":[{\"problemId\":3,\"confidence\":0.5}]}\n```",
		"embedded": "Sure! {\"items\":[{\"problemId\":3,\"confidence\":0.5}]} Hope this helps.",
	}
	for name, raw := range cases {
		res, err := Parse(raw, cands, 5)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(res.Items) != 1 || res.Items[0].ProblemID != 3 {
			t.Fatalf("%s: items=%+v", name, res.Items)
		}
	}
}

func TestParseNormalizesItems(t *testing.T) {
	raw := `{"items":[
		{"problemId":"2","confidence":1.7},
		{"problemId":2,"confidence":0.1},
		{"problemId":1.5,"confidence":0.3},
		{"problemId":"x"},
		{"problemId":1,"confidence":-3,"score":0.4},
		{"problemId":3,"confidence":0.2}
	]}`
	res, err := Parse(raw, cands, 2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("limit not applied: %+v", res.Items)
	}
	if res.Items[0].ProblemID != 2 || res.Items[0].Confidence != 1 {
		t.Fatalf("first=%+v", res.Items[0])
	}
	if res.Items[1].ProblemID != 1 || res.Items[1].Confidence != 0 || res.Items[1].Score != 0.4 {
		t.Fatalf("second=%+v", res.Items[1])
	}
	if res.Dropped != 1 {
		t.Fatalf("duplicate should count as dropped: %d", res.Dropped)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "no json here", `{"results":[]}`, `[1,2,3]`} {
		if _, err := Parse(raw, cands, 5); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("raw=%q: want ErrUnparseable, got %v", raw, err)
		}
	}
}

func TestDroppedRatio(t *testing.T) {
	if (Result{}).DroppedRatio() != 0 {
		t.Fatalf("empty ratio")
	}
	if r := (Result{Dropped: 1, Received: 4}).DroppedRatio(); r != 0.25 {
		t.Fatalf("ratio=%v", r)
	}
}
