package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
	"github.com/devicelab-dev/droidpilot/pkg/vision"
)

var elementsCommand = &cli.Command{
	Name:  "elements",
	Usage: "Print the clickable elements of the current screen",
	Description: `Dump the UI hierarchy of the connected device and print the
structural element index: every clickable or focusable node with its bounds.

Examples:
  droidpilot elements
  droidpilot elements --json
  droidpilot elements --all`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output as JSON",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Include non-clickable nodes that carry a rectangle",
		},
	},
	Action: runElements,
}

var describeCommand = &cli.Command{
	Name:  "describe",
	Usage: "Describe the current screen with the description service",
	Description: `Capture a screenshot and print the description service's analysis:
a summary, screen flags and the elements it located (image coordinates).

Requires a Gemini API key (--api-key or GEMINI_API_KEY).

Examples:
  droidpilot describe
  droidpilot describe --json`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output as JSON",
		},
	},
	Action: runDescribe,
}

func runElements(c *cli.Context) error {
	cfg, err := loadConfig(c, afero.NewOsFs())
	if err != nil {
		return err
	}
	if err := initLogging(c, cfg); err != nil {
		return err
	}

	dev, err := connectDevice(c.Context, cfg.Device.Serial)
	if err != nil {
		return err
	}
	raw, err := dev.DumpUITree(c.Context)
	if err != nil {
		return fmt.Errorf("dump UI tree: %w", err)
	}

	parse := uitree.Parse
	if c.Bool("all") {
		parse = uitree.ParseNodes
	}
	elements, err := parse(raw)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return writeElementsJSON(os.Stdout, elements)
	}
	printHeader(fmt.Sprintf("%d element(s)", len(elements)))
	return writeElementsTable(os.Stdout, elements)
}

// elementJSON is the --json form of an element.
type elementJSON struct {
	Label      string      `json:"label"`
	Class      string      `json:"class"`
	ResourceID string      `json:"resourceId,omitempty"`
	Bounds     core.Bounds `json:"bounds"`
	Center     [2]int      `json:"center"`
	Input      bool        `json:"input,omitempty"`
	Clickable  bool        `json:"clickable"`
	Enabled    bool        `json:"enabled"`
}

func writeElementsJSON(w io.Writer, elements []uitree.ClickableElement) error {
	out := make([]elementJSON, 0, len(elements))
	for _, e := range elements {
		out = append(out, elementJSON{
			Label:      e.Label(),
			Class:      shortClass(e.Class),
			ResourceID: e.ResourceID,
			Bounds:     e.Bounds,
			Center:     [2]int{e.CenterX, e.CenterY},
			Input:      e.IsInput(),
			Clickable:  e.Clickable,
			Enabled:    e.Enabled,
		})
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeElementsTable(w io.Writer, elements []uitree.ClickableElement) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tLABEL\tCENTER\tSIZE\tCLASS")
	for i, e := range elements {
		kind := "button"
		if e.IsInput() {
			kind = "input"
		} else if !e.Clickable {
			kind = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d,%d\t%dx%d\t%s\n",
			i, kind, truncate(e.Label(), 40), e.CenterX, e.CenterY, e.Width(), e.Height(), shortClass(e.Class))
	}
	return tw.Flush()
}

func runDescribe(c *cli.Context) error {
	cfg, err := loadConfig(c, afero.NewOsFs())
	if err != nil {
		return err
	}
	if err := initLogging(c, cfg); err != nil {
		return err
	}
	if cfg.Vision.APIKey == "" {
		return fmt.Errorf("describe needs a Gemini API key (--api-key or GEMINI_API_KEY)")
	}

	dev, err := connectDevice(c.Context, cfg.Device.Serial)
	if err != nil {
		return err
	}
	client, err := newDescriber(c.Context, cfg)
	if err != nil {
		return err
	}
	img, err := dev.Screenshot(c.Context)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	desc, err := client.Describe(c.Context, img, vision.AnalysisPrompt)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	}
	writeDescription(os.Stdout, desc)
	return nil
}

func writeDescription(w io.Writer, desc *core.Description) {
	fmt.Fprintf(w, "%s\n", desc.Text)

	var flags []string
	if desc.Flags.IsLoginScreen {
		flags = append(flags, "login screen")
	}
	if desc.Flags.HasEmailField {
		flags = append(flags, "email field")
	}
	if desc.Flags.HasPasswordField {
		flags = append(flags, "password field")
	}
	if desc.Flags.HasPopup {
		flags = append(flags, "popup")
	}
	if len(flags) > 0 {
		fmt.Fprintf(w, "Flags: %s\n", strings.Join(flags, ", "))
	}
	if desc.LoginStage != "" {
		fmt.Fprintf(w, "Login stage: %s\n", desc.LoginStage)
	}
	if desc.PrimaryAction != "" {
		fmt.Fprintf(w, "Primary action: %s\n", desc.PrimaryAction)
	}
	if len(desc.Elements) == 0 {
		return
	}
	fmt.Fprintf(w, "Elements (%dx%d image):\n", desc.ImageWidth, desc.ImageHeight)
	for _, e := range desc.Elements {
		label := e.Text
		if label == "" {
			label = e.Description
		}
		fmt.Fprintf(w, "  %-8s %-40s at %d,%d\n", e.Type, truncate(label, 40), e.X, e.Y)
	}
}

// shortClass drops the package from a widget class name.
func shortClass(class string) string {
	if i := strings.LastIndex(class, "."); i >= 0 {
		return class[i+1:]
	}
	return class
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
