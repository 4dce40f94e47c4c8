package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/wscommon/internal/x11"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "List the screens, depths and visuals of an X display",
	Long: `Connect to the X display and print every screen with its allowed depths
and visual types. The visual a window would be created with is marked.`,
	Example: `  # Probe $DISPLAY
  wscommon probe

  # Probe display :1 as JSON
  wscommon probe --display :1 --format json`,
	RunE: runProbe,
}

var probeFormat string

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVarP(&probeFormat, "format", "f", "table", "output format (table or json)")
}

// ScreenReport describes one screen of the display.
type ScreenReport struct {
	Index   int           `json:"index"`
	Root    uint32        `json:"root"`
	Width   uint16        `json:"width"`
	Height  uint16        `json:"height"`
	Depth   byte          `json:"root_depth"`
	Default bool          `json:"default"`
	Depths  []DepthReport `json:"depths"`
}

// DepthReport describes one allowed depth.
type DepthReport struct {
	Depth   byte           `json:"depth"`
	Visuals []VisualReport `json:"visuals"`
}

// VisualReport describes one visual type.
type VisualReport struct {
	ID       uint32 `json:"id"`
	Class    string `json:"class"`
	Bits     byte   `json:"bits_per_rgb"`
	Entries  uint16 `json:"colormap_entries"`
	Selected bool   `json:"selected"`
}

var visualClasses = map[byte]string{
	xproto.VisualClassStaticGray:  "StaticGray",
	xproto.VisualClassGrayScale:   "GrayScale",
	xproto.VisualClassStaticColor: "StaticColor",
	xproto.VisualClassPseudoColor: "PseudoColor",
	xproto.VisualClassTrueColor:   "TrueColor",
	xproto.VisualClassDirectColor: "DirectColor",
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg := effectiveConfig()
	c, err := x11.Open(cfg.Display, cfg.Screen)
	if err != nil {
		return err
	}
	defer c.Close()

	reports := probe(c)

	switch probeFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(reports)
	case "table":
		return printProbeTable(os.Stdout, reports)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", probeFormat)
	}
}

// probe walks the setup block. On each screen the first TrueColor visual
// at depth 32 is marked selected.
func probe(c *x11.Connection) []ScreenReport {
	var reports []ScreenReport
	for screen := range c.Screens().Seq() {
		sr := ScreenReport{
			Index:   screen.Index,
			Root:    uint32(screen.Root),
			Width:   screen.Width,
			Height:  screen.Height,
			Depth:   screen.RootDepth,
			Default: screen.Index == c.DefaultScreen(),
		}

		selected := false
		for depth := range screen.Depths().Seq() {
			dr := DepthReport{Depth: depth.Depth, Visuals: []VisualReport{}}
			for v := range depth.Visuals().Seq() {
				vr := VisualReport{
					ID:      uint32(v.ID),
					Class:   visualClasses[v.Class],
					Bits:    v.BitsPerRGBValue,
					Entries: v.ColormapEntries,
				}
				if !selected && depth.Depth == 32 && v.IsTrueColor() {
					vr.Selected = true
					selected = true
				}
				dr.Visuals = append(dr.Visuals, vr)
			}
			sr.Depths = append(sr.Depths, dr)
		}
		reports = append(reports, sr)
	}
	return reports
}

func printProbeTable(out io.Writer, reports []ScreenReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	for _, s := range reports {
		def := ""
		if s.Default {
			def = " (default)"
		}
		fmt.Fprintf(w, "Screen %d%s: %dx%d, root 0x%x, depth %d\n", s.Index, def, s.Width, s.Height, s.Root, s.Depth)
		fmt.Fprintln(w, "DEPTH\tVISUAL\tCLASS\tBITS\tENTRIES\t")
		fmt.Fprintln(w, "-----\t------\t-----\t----\t-------\t")
		for _, d := range s.Depths {
			if len(d.Visuals) == 0 {
				fmt.Fprintf(w, "%d\t-\t\t\t\t\n", d.Depth)
				continue
			}
			for _, v := range d.Visuals {
				mark := ""
				if v.Selected {
					mark = "*"
				}
				fmt.Fprintf(w, "%d\t0x%x\t%s\t%d\t%d\t%s\n", d.Depth, v.ID, v.Class, v.Bits, v.Entries, mark)
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}
