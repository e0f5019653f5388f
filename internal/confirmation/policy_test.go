package confirmation

import "testing"

func block(n uint64) *uint64 { return &n }

func TestClassify(t *testing.T) {
	p := New(3, 10)

	tests := []struct {
		name    string
		height  uint64
		txBlock *uint64
		want    Verdict
	}{
		{"unmined", 100, nil, Verdict{Kind: Unconfirmed}},
		{"node behind tx block", 9, block(10), Verdict{Kind: Unconfirmed}},
		{"same block", 10, block(10), Verdict{Kind: Confirming, Depth: 0}},
		{"two deep", 12, block(10), Verdict{Kind: Confirming, Depth: 2}},
		{"exactly required", 13, block(10), Verdict{Kind: Finalized, Depth: 3}},
		{"beyond required", 50, block(10), Verdict{Kind: Finalized, Depth: 40}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.Classify(tc.height, tc.txBlock); got != tc.want {
				t.Fatalf("Classify(%d) = %s, want %s", tc.height, got, tc.want)
			}
		})
	}
}

func TestClassifyIsMonotoneInHeight(t *testing.T) {
	p := New(5, 0)
	tx := block(100)

	prev := p.Classify(0, tx)
	for h := uint64(1); h <= 200; h++ {
		cur := p.Classify(h, tx)
		if cur.Kind < prev.Kind {
			t.Fatalf("verdict regressed at height %d: %s -> %s", h, prev, cur)
		}
		if cur.Kind == prev.Kind && cur.Depth < prev.Depth {
			t.Fatalf("depth regressed at height %d: %s -> %s", h, prev, cur)
		}
		prev = cur
	}
	if prev.Kind != Finalized {
		t.Fatalf("final verdict = %s", prev)
	}
}

func TestZeroRequiredTreatedAsOne(t *testing.T) {
	p := Policy{}
	if got := p.Classify(10, block(10)); got.Kind != Confirming {
		t.Fatalf("depth 0 = %s, want Confirming", got)
	}
	if got := p.Classify(11, block(10)); got.Kind != Finalized {
		t.Fatalf("depth 1 = %s, want Finalized", got)
	}
}

func TestWithinReorgWindow(t *testing.T) {
	p := New(3, 10)

	tests := []struct {
		height uint64
		want   bool
	}{
		{9, true},
		{13, true},
		{23, true},
		{24, false},
	}
	for _, tc := range tests {
		if got := p.WithinReorgWindow(tc.height, block(10)); got != tc.want {
			t.Errorf("WithinReorgWindow(%d) = %v, want %v", tc.height, got, tc.want)
		}
	}
	if !p.WithinReorgWindow(100, nil) {
		t.Errorf("unknown block must stay within window")
	}
}
