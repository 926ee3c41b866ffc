package controller

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/sweeney/gcode-serial/internal/action"
	"github.com/sweeney/gcode-serial/internal/extract"
)

// FilterLine applies the load filter to one line of a G-code file. It
// returns the command to enqueue (empty if the line is dropped) and, for a
// max_layer_z header, the announced height.
func FilterLine(line string) (cmd string, maxZ float32, hasMaxZ bool) {
	maxZ, hasMaxZ = extract.MaxLayerZ(line)

	cmd = strings.TrimSpace(line)
	if cmd == "" || strings.HasPrefix(cmd, ";") {
		return "", maxZ, hasMaxZ
	}
	if i := strings.IndexByte(cmd, ';'); i >= 0 {
		cmd = strings.TrimSpace(cmd[:i])
	}
	return cmd, maxZ, hasMaxZ
}

// openModel opens name inside files and describes it.
func openModel(files fs.FS, name string, now time.Time) (fs.File, action.ActiveFile, error) {
	f, err := files.Open(name)
	if err != nil {
		return nil, action.ActiveFile{}, fmt.Errorf("controller: open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, action.ActiveFile{}, fmt.Errorf("controller: stat %s: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, action.ActiveFile{}, fmt.Errorf("controller: %s is a directory", name)
	}
	return f, action.ActiveFile{
		Name:         name,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		StartTime:    now,
	}, nil
}

// load streams r through the filter. Commands go to push in batches; max
// layer heights are reported through maxZ as they are found.
func load(r io.Reader, push func(...string) int, maxZ func(float32)) error {
	const batch = 256

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	pending := make([]string, 0, batch)
	for sc.Scan() {
		cmd, z, hasZ := FilterLine(sc.Text())
		if hasZ {
			maxZ(z)
		}
		if cmd == "" {
			continue
		}
		pending = append(pending, cmd)
		if len(pending) == batch {
			push(pending...)
			pending = pending[:0]
		}
	}
	if len(pending) > 0 {
		push(pending...)
	}
	return sc.Err()
}
