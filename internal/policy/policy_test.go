package policy_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"fbdevops/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for in, want := range map[string]policy.Policy{
		"":         policy.Prompt,
		"approve":  policy.Approve,
		" REJECT ": policy.Reject,
		"prompt":   policy.Prompt,
	} {
		got, err := policy.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := policy.Parse("maybe")
	assert.ErrorIs(t, err, policy.ErrUnknownPolicy)
}

func TestConfirm_FixedPolicies(t *testing.T) {
	d, err := policy.New(policy.Approve, nil, nil).Confirm(context.Background(), "deploy?")
	require.NoError(t, err)
	assert.True(t, d.Proceed)

	d, err = policy.New(policy.Reject, strings.NewReader("y\n"), nil).Confirm(context.Background(), "deploy?")
	require.NoError(t, err)
	assert.False(t, d.Proceed)
}

func TestConfirm_Prompt(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"what\ny\n", true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		d, err := policy.New(policy.Prompt, strings.NewReader(tt.input), &out).Confirm(context.Background(), "remove node_modules?")
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, d.Proceed, tt.input)
		assert.Contains(t, out.String(), "remove node_modules? [y/N]")
	}
}

func TestConfirm_SharedReader(t *testing.T) {
	d := policy.New(policy.Prompt, strings.NewReader("y\nn\n"), nil)

	first, err := d.Confirm(context.Background(), "one")
	require.NoError(t, err)
	second, err := d.Confirm(context.Background(), "two")
	require.NoError(t, err)

	assert.True(t, first.Proceed)
	assert.False(t, second.Proceed)
}

func TestConfirm_Cancelled(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()
	var out bytes.Buffer
	d := policy.New(policy.Prompt, in, &out)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		_, err := d.Confirm(ctx, "continue?")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Confirm did not return after cancel")
	}
}

func TestConfirm_ReadError(t *testing.T) {
	in, w := io.Pipe()
	_ = w.CloseWithError(io.ErrUnexpectedEOF)

	_, err := policy.New(policy.Prompt, in, nil).Confirm(context.Background(), "continue?")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
