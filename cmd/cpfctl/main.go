package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/xbeat/certicredia-sub001/internal/canonical"
	"github.com/xbeat/certicredia-sub001/internal/domain"
	"github.com/xbeat/certicredia-sub001/internal/indicator"
	"github.com/xbeat/certicredia-sub001/internal/scoring"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 1
	}
	var err error
	switch args[0] {
	case "score":
		err = score(args[1:], stdout, stderr)
	case "validate":
		err = validate(args[1:], stdout)
	case "verify":
		err = verify(args[1:], stdout)
	default:
		usage(stderr)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "FAIL: %v\n", err)
		return 2
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cpfctl score -indicator def.json -responses responses.json")
	fmt.Fprintln(w, "  cpfctl validate -dir ./indicators")
	fmt.Fprintln(w, "  cpfctl verify -history history.json")
}

func score(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	defPath := fs.String("indicator", "", "indicator definition (json or yaml)")
	respPath := fs.String("responses", "", "responses file (json object)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *defPath == "" {
		return fmt.Errorf("-indicator is required")
	}

	data, err := os.ReadFile(*defPath)
	if err != nil {
		return err
	}
	def, err := indicator.Decode(filepath.Base(*defPath), data)
	if err != nil {
		return err
	}
	if err := indicator.Prepare(def); err != nil {
		return err
	}

	responses := domain.Responses{}
	if *respPath != "" {
		raw, err := os.ReadFile(*respPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &responses); err != nil {
			return fmt.Errorf("decode responses: %w", err)
		}
	}

	log := logrus.New()
	log.SetOutput(stderr)
	res := scoring.New(log).Compute(def, responses)

	out := struct {
		domain.ScoreResult
		FinalPercent float64 `json:"final_percent"`
	}{res, scoring.Percent(res.FinalScore)}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func validate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	dir := fs.String("dir", "./indicators", "indicator definition directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cat, err := indicator.LoadDir(*dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "OK: %d indicator definitions\n", cat.Len())
	return nil
}

// verify recomputes the digest of every version in an exported history and
// checks that numbering is gapless.
func verify(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	path := fs.String("history", "", "history export (json array of versions)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := os.ReadFile(*path)
	if err != nil {
		return err
	}
	var history []domain.Version
	if err := json.Unmarshal(raw, &history); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	for i, v := range history {
		if v.Version != i+1 {
			return fmt.Errorf("entry %d has version %d, want %d", i, v.Version, i+1)
		}
		digest, err := canonical.Digest(v.Data)
		if err != nil {
			return err
		}
		if digest != v.Digest {
			return fmt.Errorf("version %d: digest mismatch", v.Version)
		}
	}
	fmt.Fprintf(stdout, "OK: %d versions\n", len(history))
	return nil
}
