package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const defaultLogLines = 50

var logsCmd = &cobra.Command{
	Use:   "logs <agent>",
	Short: "Show an agent's log output",
	Long: `Logs prints the tail of the agent's .agent-log file.

Examples:
  # Last status.log_lines lines (50 when unset)
  pipewright pipeline logs 01-auth

  # Whole log
  pipewright pipeline logs 01-auth -n 0

  # Follow new output until interrupted
  pipewright pipeline logs 01-auth -f`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

var (
	logsLines  int
	logsFollow bool
)

func init() {
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", defaultLogLines, "Number of lines to show (default: status.log_lines; 0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
}

// RegisterLogsCmd registers the logs command with the given parent command.
func RegisterLogsCmd(parent *cobra.Command) {
	parent.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	return withRuntime(func(r *runtime) error {
		path, err := r.orch.LogFile(args[0])
		if err != nil {
			return err
		}

		n := logsLines
		if !cmd.Flags().Changed("lines") && r.cfg.Status.LogLines > 0 {
			n = r.cfg.Status.LogLines
		}

		out := cmd.OutOrStdout()
		strip := !isTerminal(out)

		lines, offset, err := readLogLines(path, n)
		if err != nil {
			return err
		}
		for _, line := range lines {
			writeLogLine(out, line, strip)
		}
		if !logsFollow {
			return nil
		}
		return followLog(cmd.Context(), path, offset, out, strip)
	})
}

// readLogLines returns the last n lines of path, or all of them when n is not
// positive, along with the number of bytes read. A follower starting at that
// offset sees exactly what the tail did not.
func readLogLines(path string, n int) ([]string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to read log file: %w", err)
	}
	offset := int64(len(data))
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, offset, nil
	}
	lines := strings.Split(text, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines, offset, nil
}

func writeLogLine(w io.Writer, line string, strip bool) {
	if strip {
		line = ansi.Strip(line)
	}
	fmt.Fprintln(w, line)
}

// logFollower reads whole lines appended to a file since the last read.
type logFollower struct {
	path    string
	offset  int64
	pending string
}

// drain writes every complete line appended since the previous call. A file
// that shrank is assumed to have been rewritten and is read from the start.
func (f *logFollower) drain(w io.Writer, strip bool) error {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		return err
	}
	if fi.Size() < f.offset {
		f.offset = 0
		f.pending = ""
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.offset += int64(len(data))

	buf := f.pending + string(data)
	for {
		i := strings.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		writeLogLine(w, strings.TrimSuffix(buf[:i], "\r"), strip)
		buf = buf[i+1:]
	}
	f.pending = buf
	return nil
}

// followLog streams lines appended to path after offset until ctx is done.
func followLog(ctx context.Context, path string, offset int64, w io.Writer, strip bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so a recreated log file is still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	f := &logFollower{path: path, offset: offset}
	// Catch anything written between the tail and the watch.
	if err := f.drain(w, strip); err != nil {
		return err
	}

	base := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.drain(w, strip); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watcher: %w", err)
		}
	}
}
