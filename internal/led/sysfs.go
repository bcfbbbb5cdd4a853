package led

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultClassDir is the sysfs LED class directory.
const DefaultClassDir = "/sys/class/leds"

// backlightMarker identifies keyboard backlight LEDs by name.
const backlightMarker = "kbd_backlight"

// brightnessFile is the open sysfs brightness attribute. Reads and writes use
// offset 0 so the handle can stay open for the life of the process.
type brightnessFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// led is a single LED in the class directory.
type led struct {
	name   string
	file   brightnessFile
	max    uint32
	target uint32
	start  uint32
}

// openLED reads max_brightness once and opens brightness read-write.
func openLED(dir, name string, percent int) (*led, error) {
	base := filepath.Join(dir, name)

	maxBrightness, err := readValue(filepath.Join(base, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("LED %q: %w", name, err)
	}

	f, err := os.OpenFile(filepath.Join(base, "brightness"), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("LED %q: %w", name, err)
	}

	return &led{
		name:   name,
		file:   f,
		max:    maxBrightness,
		target: targetBrightness(percent, maxBrightness),
	}, nil
}

func (l *led) read() (uint32, error) {
	buf := make([]byte, 32)
	n, err := l.file.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	return parseValue(buf[:n])
}

func (l *led) write(v uint32) error {
	buf := strconv.AppendUint(make([]byte, 0, 12), uint64(v), 10)
	_, err := l.file.WriteAt(append(buf, '\n'), 0)
	return err
}

// targetBrightness converts a percentage of max to an absolute value,
// rounding half away from zero.
func targetBrightness(percent int, maxBrightness uint32) uint32 {
	return uint32(math.Round(float64(percent) / 100 * float64(maxBrightness)))
}

func readValue(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := parseValue(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// parseValue parses the first line of a sysfs attribute as a decimal.
func parseValue(data []byte) (uint32, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid brightness %q", data)
	}
	return uint32(v), nil
}

// Info describes an LED for listing.
type Info struct {
	Name          string
	Brightness    uint32
	MaxBrightness uint32
	Backlight     bool
}

// List describes every LED in dir, keyboard backlights first.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		info := Info{Name: name, Backlight: isBacklight(name)}
		if v, err := readValue(filepath.Join(dir, name, "max_brightness")); err == nil {
			info.MaxBrightness = v
		}
		if v, err := readValue(filepath.Join(dir, name, "brightness")); err == nil {
			info.Brightness = v
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Backlight != infos[j].Backlight {
			return infos[i].Backlight
		}
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

func isBacklight(name string) bool {
	return strings.Contains(name, backlightMarker)
}
