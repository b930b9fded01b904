package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"storyvm/internal/image"
	"storyvm/internal/vm"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <story.t3>",
	Short: "Describe a story image and check its dependencies",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	inspectCmd.Flags().Bool("disasm", false, "disassemble the code pool")
}

type depReport struct {
	Name     string `json:"name"`
	Resolved string `json:"resolved,omitempty"`
	Error    string `json:"error,omitempty"`
}

type symbolReport struct {
	Name string `json:"name"`
	Word uint32 `json:"word"`
}

type inspectReport struct {
	Path         string         `json:"path"`
	Version      uint16         `json:"version"`
	Entry        uint32         `json:"entry"`
	CodeBytes    int            `json:"code_bytes"`
	CodePageSize int            `json:"code_page_size"`
	DataBytes    int            `json:"data_bytes"`
	DataPageSize int            `json:"data_page_size"`
	Metaclasses  []depReport    `json:"metaclasses"`
	FunctionSets []depReport    `json:"function_sets"`
	Objects      map[string]int `json:"objects"`
	Symbols      []symbolReport `json:"symbols,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	disasm, err := cmd.Flags().GetBool("disasm")
	if err != nil {
		return fmt.Errorf("failed to get disasm flag: %w", err)
	}
	switch format {
	case "pretty", "json":
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	img, err := image.Load(args[0])
	if err != nil {
		return err
	}
	rep := buildInspectReport(args[0], img, vm.DefaultRegistry())
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	renderInspectPretty(out, rep)
	if disasm {
		disassemble(out, img)
	}
	return nil
}

func buildInspectReport(path string, img *image.Image, reg *vm.Registry) inspectReport {
	rep := inspectReport{
		Path:         path,
		Version:      img.Version,
		Entry:        img.Entry,
		CodeBytes:    img.Code.Len(),
		CodePageSize: img.Code.PageSize,
		DataBytes:    img.Data.Len(),
		DataPageSize: img.Data.PageSize,
		Objects:      make(map[string]int),
	}
	for _, dep := range img.Metaclasses {
		r := depReport{Name: dep}
		if m, err := reg.ResolveMetaclass(dep); err != nil {
			r.Error = err.Error()
		} else {
			r.Resolved = m.Descriptor().String()
		}
		rep.Metaclasses = append(rep.Metaclasses, r)
	}
	for _, dep := range img.FunctionSets {
		r := depReport{Name: dep}
		if fs, err := reg.ResolveFuncSet(dep); err != nil {
			r.Error = err.Error()
		} else {
			r.Resolved = fs.Desc.String()
		}
		rep.FunctionSets = append(rep.FunctionSets, r)
	}
	for _, o := range img.Objects {
		name := fmt.Sprintf("#%d", o.Metaclass)
		if int(o.Metaclass) < len(img.Metaclasses) {
			name = img.Metaclasses[o.Metaclass]
		}
		rep.Objects[name]++
	}
	for name, at := range img.Symbols {
		rep.Symbols = append(rep.Symbols, symbolReport{Name: name, Word: at})
	}
	slices.SortFunc(rep.Symbols, func(a, b symbolReport) int {
		if a.Word != b.Word {
			return int(a.Word) - int(b.Word)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return rep
}

func renderInspectPretty(out io.Writer, rep inspectReport) {
	fmt.Fprintf(out, "%s: image format %d, entry pc=%06d\n", rep.Path, rep.Version, rep.Entry) //nolint:errcheck
	fmt.Fprintf(out, "code pool: %d bytes, page size %d\n", rep.CodeBytes, rep.CodePageSize)   //nolint:errcheck
	fmt.Fprintf(out, "data pool: %d bytes, page size %d\n", rep.DataBytes, rep.DataPageSize)   //nolint:errcheck
	renderDeps(out, "metaclasses", rep.Metaclasses)
	renderDeps(out, "function sets", rep.FunctionSets)

	names := make([]string, 0, len(rep.Objects))
	for name := range rep.Objects {
		names = append(names, name)
	}
	slices.Sort(names)
	fmt.Fprintln(out, "static objects:") //nolint:errcheck
	for _, name := range names {
		fmt.Fprintf(out, "  %-24s %d\n", name, rep.Objects[name]) //nolint:errcheck
	}
	if len(rep.Symbols) > 0 {
		fmt.Fprintln(out, "symbols:") //nolint:errcheck
		for _, s := range rep.Symbols {
			fmt.Fprintf(out, "  %06d %s\n", s.Word, s.Name) //nolint:errcheck
		}
	}
}

func renderDeps(out io.Writer, title string, deps []depReport) {
	fmt.Fprintf(out, "%s:\n", title) //nolint:errcheck
	for _, d := range deps {
		if d.Error != "" {
			fmt.Fprintf(out, "  %-24s %s\n", d.Name, errorLabel.Sprint(d.Error)) //nolint:errcheck
			continue
		}
		fmt.Fprintf(out, "  %-24s -> %s\n", d.Name, d.Resolved) //nolint:errcheck
	}
}

// disassemble prints every code word with the symbol defined at it.
func disassemble(out io.Writer, img *image.Image) {
	fmt.Fprintln(out, "code:") //nolint:errcheck
	var word uint32
	for _, page := range img.Code.Pages {
		for off := 0; off+4 <= len(page); off += 4 {
			w := binary.LittleEndian.Uint32(page[off:])
			line := fmt.Sprintf("  %06d  %08x  %s", word, w, vm.Disasm(w))
			if name, ok := img.SymbolAt(word); ok {
				line += "  <" + name + ">"
			}
			fmt.Fprintln(out, line) //nolint:errcheck
			word++
		}
	}
}
