package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var socketsCmd = &cobra.Command{
	Use:   "sockets",
	Short: "List socket files and whether a gateway is listening on them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		infos, err := listSockets(cfg.SocketDir)
		if err != nil {
			return err
		}
		printSockets(cmd.OutOrStdout(), cfg.SocketDir, infos)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(socketsCmd)
}

// socketInfo describes one socket file under the socket directory.
type socketInfo struct {
	Pattern string // derived from the relative path: "all", "claude", "claude.toolUse"
	Path    string
	Live    bool
}

// listSockets walks dir for socket files and probes each one. A missing
// directory yields no sockets.
func listSockets(dir string) ([]socketInfo, error) {
	var out []socketInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.Type()&fs.ModeSocket == 0 {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, socketInfo{
			Pattern: strings.ReplaceAll(strings.TrimSuffix(rel, ".sock"), string(os.PathSeparator), "."),
			Path:    path,
			Live:    probe(path),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing sockets in %s: %w", dir, err)
	}
	return out, nil
}

func probe(path string) bool {
	c, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

func printSockets(w io.Writer, dir string, infos []socketInfo) {
	if len(infos) == 0 {
		fmt.Fprintf(w, "no sockets in %s\n", dir)
		return
	}
	width := 0
	for _, s := range infos {
		width = max(width, len(s.Pattern))
	}
	for _, s := range infos {
		state := successStyle.Render("live")
		if !s.Live {
			state = errorStyle.Render("stale")
		}
		fmt.Fprintf(w, "%-*s  %s  %s\n", width, s.Pattern, state, mutedStyle.Render(s.Path))
	}
}
