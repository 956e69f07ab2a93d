package bp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"llbp-sim/internal/bp/llbp"
	"llbp-sim/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allNames = []string{
	common.PredictorTage64k,
	common.PredictorTage64kSCL,
	common.PredictorTage512kSCL,
	common.PredictorLLBP,
	common.PredictorLLBPTiming,
}

func fullConfigDoc(t *testing.T, overrides map[string]any) *Document {
	t.Helper()
	values := map[string]any{
		"numPatterns":     16,
		"numContexts":     4096,
		"ctxAssoc":        8,
		"ptrnAssoc":       4,
		"TTWidth":         13,
		"CTWidth":         14,
		"pbSize":          64,
		"pbAssoc":         4,
		"CtrWidth":        3,
		"ReplCtrWidth":    16,
		"CtxReplCtrWidth": 2,
	}
	for k, v := range overrides {
		values[k] = v
	}
	doc, err := NewDocument(values)
	require.NoError(t, err)
	return doc
}

// branchStream is a deterministic mix of conditional and unconditional branches.
func branchStream(n int) []common.Branch {
	stream := make([]common.Branch, 0, n)
	for i := 0; i < n; i++ {
		pc := 0x400000 + uint64(i%37)*16
		if i%9 == 0 {
			stream = append(stream, common.Branch{PC: pc, Target: pc + 0x100, Type: common.Call})
			continue
		}
		stream = append(stream, common.CondBranch(pc, pc+0x40))
	}
	return stream
}

func outcome(i int, br common.Branch) bool {
	if !br.IsConditional() {
		return true
	}
	return (i%5 == 0) != (br.PC&0x30 == 0)
}

func drive(p Predictor, stream []common.Branch) []bool {
	preds := make([]bool, 0, len(stream))
	for i, br := range stream {
		if br.IsConditional() {
			preds = append(preds, p.Predict(br.PC))
		}
		p.Update(br.PC, outcome(i, br), br)
	}
	return preds
}

func TestCreateBP_AllKinds(t *testing.T) {
	for _, name := range allNames {
		t.Run(name, func(t *testing.T) {
			p, err := CreateBP(name)
			require.NoError(t, err)
			require.NotNil(t, p)

			// Predict is a pure query.
			first := p.Predict(0x1000)
			assert.Equal(t, first, p.Predict(0x1000))
			p.Update(0x1000, !first, common.CondBranch(0x1000, 0x1040))
		})
	}
}

func TestCreateBP_UnknownName(t *testing.T) {
	for _, name := range []string{"bogus-name", "", "LLBP", "tage64k ", "llbp_timing"} {
		t.Run(name, func(t *testing.T) {
			p, err := CreateBP(name)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, ErrUnknownPredictor))

			var unknown *UnknownPredictorError
			require.True(t, errors.As(err, &unknown))
			assert.Equal(t, name, unknown.Name)
		})
	}

	_, err := CreateBP("bogus-name")
	assert.EqualError(t, err, "Wrong BP name: bogus-name")
}

func TestCreateBP_TimingCapability(t *testing.T) {
	for _, name := range allNames {
		p, err := CreateBP(name)
		require.NoError(t, err)

		tr, ok := SupportsTiming(p)
		if name == common.PredictorLLBPTiming {
			require.True(t, ok, "llbp-timing must expose timing statistics")
			assert.Equal(t, llbp.DefaultConfig().AccessDelay, tr.TimingStats().AccessDelay)
		} else {
			assert.False(t, ok, "%s must not expose timing statistics", name)
		}
	}
}

func TestCreateBP_IndependentInstances(t *testing.T) {
	stream := branchStream(20000)
	for _, name := range allNames {
		t.Run(name, func(t *testing.T) {
			a, err := CreateBP(name)
			require.NoError(t, err)
			b, err := CreateBP(name)
			require.NoError(t, err)

			predsA := drive(a, stream)
			predsB := drive(b, stream)
			assert.Equal(t, predsA, predsB, "fresh instances must behave identically")

			c, err := CreateBP(name)
			require.NoError(t, err)
			before := make([]bool, 0, 37)
			for i := 0; i < 37; i++ {
				before = append(before, c.Predict(0x400000+uint64(i)*16))
			}
			drive(a, stream)
			for i := 0; i < 37; i++ {
				assert.Equal(t, before[i], c.Predict(0x400000+uint64(i)*16),
					"training one instance must not affect another")
			}
		})
	}
}

func TestCreateBPWithConfig_RoundTrip(t *testing.T) {
	for _, name := range []string{common.PredictorLLBP, common.PredictorLLBPTiming} {
		t.Run(name, func(t *testing.T) {
			doc := fullConfigDoc(t, map[string]any{
				"numPatterns": 32,
				"numContexts": 2048,
				"pbSize":      128,
				"TTWidth":     11,
				"accessDelay": 9,
			})
			p, err := CreateBPWithConfig(name, doc)
			require.NoError(t, err)

			conf, ok := ConfigOf(p)
			require.True(t, ok)
			want := llbp.DefaultConfig()
			want.NumPatterns = 32
			want.NumContexts = 2048
			want.PBSize = 128
			want.TTWidth = 11
			want.AccessDelay = 9
			assert.Equal(t, want, conf)
		})
	}
}

func TestCreateBPWithConfig_AccessDelayOptional(t *testing.T) {
	p, err := CreateBPWithConfig(common.PredictorLLBPTiming, fullConfigDoc(t, nil))
	require.NoError(t, err)

	tr, ok := SupportsTiming(p)
	require.True(t, ok)
	assert.Equal(t, 5, tr.TimingStats().AccessDelay)
}

func TestCreateBPWithConfig_MissingFields(t *testing.T) {
	empty, err := ParseDocument([]byte("{}"))
	require.NoError(t, err)

	p, err := CreateBPWithConfig(common.PredictorLLBP, empty)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "numPatterns")

	partial, err := NewDocument(map[string]any{"numPatterns": 42})
	require.NoError(t, err)
	_, err = CreateBPWithConfig(common.PredictorLLBP, partial)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "numPatterns,")
	assert.Contains(t, err.Error(), "CtxReplCtrWidth")

	tests := []struct {
		name string
		text string
	}{
		{"null for int", `{"numPatterns": null, "numContexts": 4096, "ctxAssoc": 8, "ptrnAssoc": 4,
			"TTWidth": 13, "CTWidth": 14, "pbSize": 64, "pbAssoc": 4, "CtrWidth": 3,
			"ReplCtrWidth": 16, "CtxReplCtrWidth": 2}`},
		{"yaml empty value", "numPatterns:\nnumContexts: 4096\nctxAssoc: 8\nptrnAssoc: 4\n" +
			"TTWidth: 13\nCTWidth: 14\npbSize: 64\npbAssoc: 4\nCtrWidth: 3\n" +
			"ReplCtrWidth: 16\nCtxReplCtrWidth: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.text))
			require.NoError(t, err)
			p, err := CreateBPWithConfig(common.PredictorLLBP, doc)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), "numPatterns")
		})
	}
}

func TestCreateBPWithConfig_NullOptionalRejected(t *testing.T) {
	p, err := CreateBPWithConfig(common.PredictorLLBPTiming, fullConfigDoc(t, map[string]any{"accessDelay": nil}))
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "accessDelay")
}

func TestCreateBPWithConfig_NonIntegerText(t *testing.T) {
	base := "numPatterns: 16\nnumContexts: 4096\nctxAssoc: 8\nptrnAssoc: 4\n" +
		"TTWidth: 13\nCTWidth: 14\npbAssoc: 4\nCtrWidth: 3\n" +
		"ReplCtrWidth: 16\nCtxReplCtrWidth: 2\n"
	tests := []struct {
		name   string
		pbSize string
	}{
		{"whole float", "pbSize: 64.0\n"},
		{"fraction", "pbSize: 63.5\n"},
		{"quoted number", "pbSize: \"64\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(base + tt.pbSize))
			require.NoError(t, err)
			_, err = CreateBPWithConfig(common.PredictorLLBP, doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), "pbSize")
		})
	}

	doc, err := ParseDocument([]byte(base + "pbSize: 64\n"))
	require.NoError(t, err)
	_, err = CreateBPWithConfig(common.PredictorLLBP, doc)
	assert.NoError(t, err)
}

func TestCreateBPWithConfig_WideCounter(t *testing.T) {
	p, err := CreateBPWithConfig(common.PredictorLLBP, fullConfigDoc(t, map[string]any{"CtrWidth": 16}))
	require.NoError(t, err)
	conf, ok := ConfigOf(p)
	require.True(t, ok)
	assert.Equal(t, 16, conf.CtrWidth)
}

func TestCreateBPWithConfig_MalformedValues(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"string for int", map[string]any{"numPatterns": "many"}},
		{"bool for int", map[string]any{"ctxAssoc": true}},
		{"list for int", map[string]any{"pbSize": []int{1, 2}}},
		{"assoc larger than size", map[string]any{"numPatterns": 4, "ptrnAssoc": 16}},
		{"size not multiple of assoc", map[string]any{"pbSize": 100, "pbAssoc": 8}},
		{"zero contexts", map[string]any{"numContexts": 0}},
		{"counter too wide", map[string]any{"CtrWidth": 33}},
		{"float for int", map[string]any{"numPatterns": 16.9}},
		{"float for optional int", map[string]any{"accessDelay": 2.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CreateBPWithConfig(common.PredictorLLBP, fullConfigDoc(t, tt.overrides))
			require.Error(t, err)
			assert.Nil(t, p)

			var confErr *ConfigError
			require.True(t, errors.As(err, &confErr))
			assert.Equal(t, LLBP, confErr.Kind)
		})
	}
}

func TestCreateBPWithConfig_NonConfigurableIgnoresDocument(t *testing.T) {
	stream := branchStream(5000)
	doc := fullConfigDoc(t, map[string]any{"numPatterns": 64})
	garbage, err := NewDocument(map[string]any{"whatever": "value"})
	require.NoError(t, err)

	for _, name := range []string{common.PredictorTage64k, common.PredictorTage64kSCL, common.PredictorTage512kSCL} {
		t.Run(name, func(t *testing.T) {
			for _, d := range []*Document{doc, garbage} {
				configured, err := CreateBPWithConfig(name, d)
				require.NoError(t, err)
				plain, err := CreateBP(name)
				require.NoError(t, err)

				_, ok := ConfigOf(configured)
				assert.False(t, ok)
				assert.Equal(t, drive(plain, stream), drive(configured, stream))
			}
		})
	}
}

func TestCreateBPWithConfig_UnknownName(t *testing.T) {
	_, err := CreateBPWithConfig("bogus-name", fullConfigDoc(t, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPredictor))
	assert.EqualError(t, err, "Wrong BP name: bogus-name")
}

func TestCreateBPWithConfig_NilDocument(t *testing.T) {
	p, err := CreateBPWithConfig(common.PredictorLLBP, nil)
	require.NoError(t, err)
	conf, ok := ConfigOf(p)
	require.True(t, ok)
	assert.Equal(t, llbp.DefaultConfig(), conf)
}

func TestLoadDocument_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "conf.json")
	yamlPath := filepath.Join(dir, "conf.yaml")

	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
  "numPatterns": 32, "numContexts": 4096, "ctxAssoc": 8, "ptrnAssoc": 4,
  "TTWidth": 13, "CTWidth": 14, "pbSize": 64, "pbAssoc": 4,
  "CtrWidth": 3, "ReplCtrWidth": 16, "CtxReplCtrWidth": 2,
  "comment": "extra keys are ignored"
}`), 0o600))
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
numPatterns: 32
numContexts: 4096
ctxAssoc: 8
ptrnAssoc: 4
TTWidth: 13
CTWidth: 14
pbSize: 64
pbAssoc: 4
CtrWidth: 3
ReplCtrWidth: 16
CtxReplCtrWidth: 2
`), 0o600))

	for _, path := range []string{jsonPath, yamlPath} {
		doc, err := LoadDocument(path)
		require.NoError(t, err)
		conf, err := BindConfig(LLBP, doc)
		require.NoError(t, err)
		assert.Equal(t, 32, conf.NumPatterns)
	}

	_, err := LoadDocument(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestParseDocument_RejectsNonMapping(t *testing.T) {
	_, err := ParseDocument([]byte("[1, 2, 3]"))
	assert.Error(t, err)

	_, err = ParseDocument([]byte("{unclosed"))
	assert.Error(t, err)

	doc, err := ParseDocument(nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Keys())
}

func TestBindConfig_NonConfigurableKind(t *testing.T) {
	_, err := BindConfig(Tage64k, fullConfigDoc(t, nil))
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
