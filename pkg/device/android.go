// Package device provides Android device control via ADB.
package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
)

// dumpPath is where uiautomator writes the hierarchy on the device.
const dumpPath = "/sdcard/window_dump.xml"

// maxClearKeys bounds the DEL presses used to clear a field.
const maxClearKeys = 64

// AndroidDevice manages an Android device connection via ADB.
type AndroidDevice struct {
	serial  string
	adbPath string
}

// DeviceInfo contains basic device information.
type DeviceInfo struct {
	Serial     string
	Model      string
	SDK        string
	Brand      string
	IsEmulator bool
}

// ConnectedDevice is one line of `adb devices`.
type ConnectedDevice struct {
	Serial string
	State  string
}

// NoDevicesError is returned when no device is connected.
type NoDevicesError struct {
	Message     string
	Suggestions []string
}

func (e *NoDevicesError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if len(e.Suggestions) > 0 {
		sb.WriteString("\n\nOptions:\n")
		for _, s := range e.Suggestions {
			sb.WriteString("  - " + s + "\n")
		}
	}
	return sb.String()
}

// Unwrap lets callers match core.ErrDeviceDisconnected.
func (e *NoDevicesError) Unwrap() error {
	return core.ErrDeviceDisconnected
}

func buildNoDevicesError() *NoDevicesError {
	return &NoDevicesError{
		Message: "No Android devices or emulators found",
		Suggestions: []string{
			"Connect a physical device via USB and enable USB debugging",
			"Start an emulator: emulator -avd <name>",
			"Pass the serial explicitly: droidpilot --device <serial> run",
		},
	}
}

// New creates an AndroidDevice for the given serial.
// If serial is empty, it auto-detects the connected device.
func New(ctx context.Context, serial string) (*AndroidDevice, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}

	if serial == "" {
		devices, err := listDevices(ctx, adbPath)
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
		serial = devices[0].Serial
	}

	d := &AndroidDevice{
		serial:  serial,
		adbPath: adbPath,
	}

	if err := d.waitForDevice(ctx, 5*time.Second); err != nil {
		return nil, core.ErrDeviceDisconnected.WithCause(err)
	}

	return d, nil
}

// ListDevices returns the devices in the "device" state.
func ListDevices(ctx context.Context) ([]ConnectedDevice, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}
	return listDevices(ctx, adbPath)
}

func listDevices(ctx context.Context, adbPath string) ([]ConnectedDevice, error) {
	out, err := exec.CommandContext(ctx, adbPath, "devices").Output()
	if err != nil {
		return nil, err
	}
	devices := parseDevices(string(out))
	if len(devices) == 0 {
		return nil, buildNoDevicesError()
	}
	return devices, nil
}

func parseDevices(out string) []ConnectedDevice {
	var devices []ConnectedDevice
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 && parts[1] == "device" {
			devices = append(devices, ConnectedDevice{Serial: parts[0], State: parts[1]})
		}
	}
	return devices
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// Shell executes a shell command on the device.
func (d *AndroidDevice) Shell(ctx context.Context, cmd string) (string, error) {
	return d.adb(ctx, "shell", cmd)
}

// Screenshot captures the screen as PNG.
func (d *AndroidDevice) Screenshot(ctx context.Context) ([]byte, error) {
	out, err := d.adbBytes(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("screencap returned no data")
	}
	return out, nil
}

// DumpUITree returns the uiautomator hierarchy XML.
func (d *AndroidDevice) DumpUITree(ctx context.Context) (string, error) {
	if _, err := d.adb(ctx, "shell", "uiautomator", "dump", dumpPath); err != nil {
		return "", err
	}
	out, err := d.adbBytes(ctx, "exec-out", "cat", dumpPath)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (d *AndroidDevice) Tap(ctx context.Context, x, y int) error {
	_, err := d.adb(ctx, "shell", "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

func (d *AndroidDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	_, err := d.adb(ctx, "shell", "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(duration.Milliseconds(), 10))
	return err
}

// TypeText types into the focused field. With clearFirst the cursor moves to
// the end and the existing text is deleted first.
func (d *AndroidDevice) TypeText(ctx context.Context, text string, clearFirst bool) error {
	if clearFirst {
		if err := d.PressKey(ctx, core.KeyMoveEnd); err != nil {
			return err
		}
		args := []string{"shell", "input", "keyevent"}
		for i := 0; i < maxClearKeys; i++ {
			args = append(args, strconv.Itoa(int(core.KeyDel)))
		}
		if _, err := d.adb(ctx, args...); err != nil {
			return err
		}
	}
	if text == "" {
		return nil
	}
	_, err := d.adb(ctx, "shell", "input", "text", escapeInputText(text))
	return err
}

func (d *AndroidDevice) PressKey(ctx context.Context, code core.KeyCode) error {
	_, err := d.adb(ctx, "shell", "input", "keyevent", strconv.Itoa(int(code)))
	return err
}

// Launch starts the launcher activity of pkg.
func (d *AndroidDevice) Launch(ctx context.Context, pkg string) error {
	out, err := d.adb(ctx, "shell", "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return err
	}
	if strings.Contains(out, "No activities found") || strings.Contains(out, "monkey aborted") {
		return core.ErrAppNotFound.WithMessage(fmt.Sprintf("package %s has no launchable activity", pkg))
	}
	return nil
}

// ForceStop stops pkg.
func (d *AndroidDevice) ForceStop(ctx context.Context, pkg string) error {
	_, err := d.adb(ctx, "shell", "am", "force-stop", pkg)
	return err
}

// IsInstalled checks if a package is installed.
func (d *AndroidDevice) IsInstalled(ctx context.Context, pkg string) bool {
	out, err := d.Shell(ctx, "pm list packages "+pkg)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true
		}
	}
	return false
}

// KeyboardShown reports whether the soft keyboard is visible.
func (d *AndroidDevice) KeyboardShown(ctx context.Context) (bool, error) {
	out, err := d.Shell(ctx, "dumpsys input_method")
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "mInputShown=true"), nil
}

// Metrics returns the screen size and status bar height.
func (d *AndroidDevice) Metrics(ctx context.Context) (core.ScreenMetrics, error) {
	out, err := d.Shell(ctx, "wm size")
	if err != nil {
		return core.ScreenMetrics{}, err
	}
	w, h, ok := parseWMSize(out)
	if !ok {
		return core.ScreenMetrics{}, core.ErrParse.WithMessage(fmt.Sprintf("unexpected wm size output: %q", strings.TrimSpace(out)))
	}
	m := core.ScreenMetrics{Width: w, Height: h}

	if out, err := d.Shell(ctx, "dumpsys window displays"); err == nil {
		m.StatusBar = parseStatusBar(out)
	}
	if m.StatusBar == 0 {
		density := 0
		if out, err := d.Shell(ctx, "wm density"); err == nil {
			density = parseDensity(out)
		}
		m.StatusBar = defaultStatusBar(density)
	}
	return m, nil
}

// Info returns device information.
func (d *AndroidDevice) Info(ctx context.Context) (DeviceInfo, error) {
	info := DeviceInfo{Serial: d.serial}

	if model, err := d.Shell(ctx, "getprop ro.product.model"); err == nil {
		info.Model = strings.TrimSpace(model)
	}
	if sdk, err := d.Shell(ctx, "getprop ro.build.version.sdk"); err == nil {
		info.SDK = strings.TrimSpace(sdk)
	}
	if brand, err := d.Shell(ctx, "getprop ro.product.brand"); err == nil {
		info.Brand = strings.TrimSpace(brand)
	}

	chars, _ := d.Shell(ctx, "getprop ro.kernel.qemu")
	info.IsEmulator = strings.TrimSpace(chars) == "1"

	return info, nil
}

// adb executes an ADB command.
func (d *AndroidDevice) adb(ctx context.Context, args ...string) (string, error) {
	out, err := d.adbBytes(ctx, args...)
	return string(out), err
}

func (d *AndroidDevice) adbBytes(ctx context.Context, args ...string) ([]byte, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, d.adbPath, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(&stderr, logger.GetWriter())

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		if strings.Contains(errMsg, "not found") || strings.Contains(errMsg, "offline") {
			return nil, core.ErrDeviceDisconnected.WithCause(fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg))
		}
		return nil, fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg)
	}
	logger.Debug("adb %s (%s)", summarizeArgs(args), time.Since(start).Round(time.Millisecond))

	return stdout.Bytes(), nil
}

// summarizeArgs shortens long argument lists such as batched key events and
// hides typed text.
func summarizeArgs(args []string) string {
	if len(args) >= 3 && args[1] == "input" && args[2] == "text" {
		return "shell input text <redacted>"
	}
	if len(args) > 8 {
		return strings.Join(args[:8], " ") + fmt.Sprintf(" ... (%d args)", len(args))
	}
	return strings.Join(args, " ")
}

// waitForDevice waits for the device to be available.
func (d *AndroidDevice) waitForDevice(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		if d.isConnected(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for device %s", d.serial)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// isConnected checks if the device is connected.
func (d *AndroidDevice) isConnected(ctx context.Context) bool {
	out, err := d.adb(ctx, "get-state")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "device"
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}

var (
	wmSizePattern  = regexp.MustCompile(`(Physical|Override) size:\s*(\d+)x(\d+)`)
	densityPattern = regexp.MustCompile(`(Physical|Override) density:\s*(\d+)`)
	insetPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`mStableInsets\s*=\s*Rect\s*\(\s*\d+\s*,\s*(\d+)`),
		regexp.MustCompile(`mStableInsets\s*=\s*\d+\s*,\s*(\d+)`),
		regexp.MustCompile(`mDisplayInsets\s*=\s*Rect\s*\(\s*\d+\s*,\s*(\d+)`),
		regexp.MustCompile(`InsetsSource[^\n]*type=statusBars[^\n]*frame=\[\d+,\d+\]\[\d+,(\d+)\]`),
	}
)

// parseWMSize reads `wm size`. An override size wins over the physical one.
func parseWMSize(out string) (int, int, bool) {
	var w, h int
	found := false
	for _, m := range wmSizePattern.FindAllStringSubmatch(out, -1) {
		mw, _ := strconv.Atoi(m[2])
		mh, _ := strconv.Atoi(m[3])
		if !found || m[1] == "Override" {
			w, h, found = mw, mh, true
		}
	}
	return w, h, found && w > 0 && h > 0
}

func parseDensity(out string) int {
	density := 0
	for _, m := range densityPattern.FindAllStringSubmatch(out, -1) {
		v, _ := strconv.Atoi(m[2])
		if density == 0 || m[1] == "Override" {
			density = v
		}
	}
	return density
}

// parseStatusBar returns the top system inset from `dumpsys window displays`,
// or 0 when none is reported.
func parseStatusBar(out string) int {
	for _, p := range insetPatterns {
		if m := p.FindStringSubmatch(out); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
				return v
			}
		}
	}
	return 0
}

// defaultStatusBar is the stock 24dp status bar at the given density.
func defaultStatusBar(density int) int {
	if density <= 0 {
		return 50
	}
	return int(math.Round(24 * float64(density) / 160))
}

// escapeInputText encodes text for `input text`: spaces become %s and shell
// metacharacters are backslash-escaped.
func escapeInputText(text string) string {
	var sb strings.Builder
	for _, r := range text {
		switch {
		case r == ' ':
			sb.WriteString("%s")
		case strings.ContainsRune("\\\"'`()<>|;&*~$!?#[]{}", r):
			sb.WriteRune('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
