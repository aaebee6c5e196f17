package ingest

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type published struct {
	name    string
	payload map[string]any
}

func collect() (*[]published, PublishFunc) {
	var got []published
	return &got, func(name string, payload map[string]any) {
		got = append(got, published{name, payload})
	}
}

func TestRun_PublishesValidLines(t *testing.T) {
	input := strings.Join([]string{
		`{"event":"claude.sessionStart","payload":{"session":"s1"}}`,
		``,
		`not json`,
		`{"payload":{"x":1}}`,
		`{"event":"terminal.created","ts":1,"extra":true}`,
	}, "\n")

	got, publish := collect()
	stats, err := Run(context.Background(), strings.NewReader(input), publish)
	require.NoError(t, err)

	require.Equal(t, Stats{Published: 2, Skipped: 2}, stats)
	require.Equal(t, "claude.sessionStart", (*got)[0].name)
	require.Equal(t, map[string]any{"session": "s1"}, (*got)[0].payload)
	require.Equal(t, "terminal.created", (*got)[1].name)
	require.Equal(t, map[string]any{}, (*got)[1].payload)
}

func TestRun_WhitespaceLinesAreIgnored(t *testing.T) {
	input := "   \t\n\r\n" + `  {"event":"claude.toolUse"}  ` + "\r\n\t\n"

	got, publish := collect()
	stats, err := Run(context.Background(), strings.NewReader(input), publish)
	require.NoError(t, err)
	require.Equal(t, Stats{Published: 1}, stats)
	require.Equal(t, "claude.toolUse", (*got)[0].name)
}

func TestRun_LineTooLong(t *testing.T) {
	long := `{"event":"a.b","payload":{"x":"` + strings.Repeat("y", maxLine) + `"}}`
	_, publish := collect()
	_, err := Run(context.Background(), strings.NewReader(long), publish)
	require.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestRun_LargeLineWithinLimit(t *testing.T) {
	big := strings.Repeat("y", 200*1024)
	got, publish := collect()
	_, err := Run(context.Background(), strings.NewReader(`{"event":"a.b","payload":{"x":"`+big+`"}}`), publish)
	require.NoError(t, err)
	require.Len(t, *got, 1)
	require.Equal(t, big, (*got)[0].payload["x"])
}

func TestRun_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got, publish := collect()

	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, pr, publish)
		done <- err
	}()

	_, err := pw.Write([]byte(`{"event":"terminal.closed"}` + "\n"))
	require.NoError(t, err)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		require.Fail(t, "Run did not return after cancel")
	}
	require.LessOrEqual(t, len(*got), 1)
}
