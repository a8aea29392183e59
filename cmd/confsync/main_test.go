package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIO подменяет терминал в тестах: отдает заготовленный ответ
// и накапливает вывод.
type fakeIO struct {
	input    string
	inputErr error
	prompts  []string
	output   []string
}

func (f *fakeIO) Println(a ...any) {
	f.output = append(f.output, fmt.Sprintln(a...))
}

func (f *fakeIO) Printf(format string, a ...any) {
	f.output = append(f.output, fmt.Sprintf(format, a...))
}

func (f *fakeIO) ReadInput(prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.input, f.inputErr
}

func (f *fakeIO) ReadPassword(prompt string) (string, error) {
	return f.ReadInput(prompt)
}

func TestConfirmForce(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   bool
	}{
		{name: "yes short", answer: "y", want: true},
		{name: "yes full", answer: "yes", want: true},
		{name: "yes uppercase", answer: "YES", want: true},
		{name: "yes with spaces", answer: "  y\n", want: true},
		{name: "no", answer: "n", want: false},
		{name: "empty defaults to no", answer: "", want: false},
		{name: "garbage", answer: "sure", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			io := &fakeIO{input: tt.answer}

			ok, err := confirmForce(io)

			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			require.Len(t, io.prompts, 1)
			assert.Contains(t, io.prompts[0], "[y/N]")
		})
	}
}

func TestConfirmForce_ReadError(t *testing.T) {
	io := &fakeIO{inputErr: errors.New("stdin closed")}

	ok, err := confirmForce(io)

	require.Error(t, err)
	assert.False(t, ok)
}
