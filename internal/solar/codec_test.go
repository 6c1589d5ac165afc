package solar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelCodecRoundTrip(t *testing.T) {
	X, y := stepData()
	f, err := Train(context.Background(), X, y, TrainConfig{Trees: 4, MaxDepth: 4, Seed: 9})
	require.NoError(t, err)

	data, err := EncodeModel("models/1,2.model", len(X), f)
	require.NoError(t, err)

	got, err := DecodeModel("models/1,2.model", data)
	require.NoError(t, err)
	assert.Equal(t, f.Features, got.Features)
	require.Len(t, got.Trees, 4)

	for _, x := range [][]float64{{5, 1}, {90, 3}} {
		want, _ := f.Predict(x)
		have, _ := got.Predict(x)
		assert.Equal(t, want, have)
	}
}

func TestDecodeModelRejectsWrongKey(t *testing.T) {
	f := &Forest{Features: 1, Trees: []Tree{{Nodes: []Node{{Feature: -1, Value: 3}}}}}
	data, err := EncodeModel("models/1,2.model", 1, f)
	require.NoError(t, err)

	_, err = DecodeModel("models/3,4.model", data)
	assert.Error(t, err)
}

func TestDecodeModelRejectsGarbage(t *testing.T) {
	_, err := DecodeModel("models/1,2.model", []byte("not a model"))
	assert.Error(t, err)
}
