// Package output renders command results and operation progress on the
// console.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Formats accepted by --output
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.Bold)
)

// PrintJSON writes data as indented JSON to stdout
func PrintJSON(data interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintYAML writes data as YAML to stdout. Field names follow the json
// tags so both formats agree.
func PrintYAML(data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// Print writes data in the requested format. The table callback renders
// the human-readable form.
func Print(format string, data interface{}, table func()) error {
	switch format {
	case FormatJSON:
		return PrintJSON(data)
	case FormatYAML:
		return PrintYAML(data)
	default:
		table()
		return nil
	}
}

// PrintTable writes tabular data to stdout
func PrintTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		headerColor.Fprint(w, h)
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, col := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, col)
		}
		fmt.Fprintln(w)
	}

	w.Flush()
}

// PrintMessage writes a plain message to stdout
func PrintMessage(msg string) {
	fmt.Println(msg)
}

// PrintSuccess writes a highlighted success message to stdout
func PrintSuccess(msg string) {
	successColor.Fprintln(os.Stdout, msg)
}

// PrintWarning writes a warning to stderr
func PrintWarning(msg string) {
	warningColor.Fprintln(os.Stderr, "Warning: "+msg)
}

// PrintError writes an error to stderr prefixed with its failure class
func PrintError(err error) {
	label := errors.Category(err)
	label = strings.ToUpper(label[:1]) + label[1:]
	errorColor.Fprintf(os.Stderr, "%s: ", label)
	fmt.Fprintln(os.Stderr, Message(err))
}

// Message returns the human-readable part of an error, without the
// domain.code prefix of structured errors
func Message(err error) string {
	var e *errors.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if cause := e.Unwrap(); cause != nil {
		return e.Message + ": " + cause.Error()
	}
	return e.Message
}
