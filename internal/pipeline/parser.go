package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"chadograph/internal/cache"
	"chadograph/pkg/chado"
)

// Parse reads a sectioned tab-delimited experiment description and registers
// every entity it mentions in the run's cache. Sections:
//
//	[experiment]    uniquename line, then name<TAB>value property lines
//	[term_sources]  name<TAB>url
//	[protocols]     name<TAB>type<TAB>description
//	[data]          key<TAB>heading<TAB>value<TAB>type<TAB>term_source
//	[applied]       protocol<TAB>input keys (comma)<TAB>output keys (comma)
//	[attributes]    datum key<TAB>heading<TAB>name<TAB>value
//	[features]      datum key<TAB>feature id<TAB>uniquename<TAB>type<TAB>genus<TAB>species
//
// Blank lines and lines starting with '#' are skipped. Trailing columns are
// optional where noted.
func Parse(r io.Reader, run *Run) error {
	experiment := &chado.Experiment{}
	root, err := run.Put(experiment)
	if err != nil {
		return err
	}
	run.Experiment = root

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	section := ""
	sawUniqueName := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.ToLower(strings.Trim(trimmed, "[]"))
			continue
		}
		cols := strings.Split(line, "\t")
		switch section {
		case "experiment":
			if !sawUniqueName {
				experiment.UniqueName = trimmed
				sawUniqueName = true
				continue
			}
			if err := parseProperty(run, experiment, cols); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
		case "term_sources":
			if err := parseTermSource(run, cols); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
		case "protocols":
			if err := parseProtocol(run, cols); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
		case "data":
			if err := parseDatum(run, cols); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
		case "applied":
			if err := parseApplied(run, experiment, cols); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
		case "attributes":
			if err := parseAttribute(run, cols, lineNo); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
		case "features":
			if err := parseFeature(run, cols); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
		case "":
			return fmt.Errorf("line %d: content before first section header", lineNo)
		default:
			return fmt.Errorf("line %d: unknown section %q", lineNo, section)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read description: %w", err)
	}
	if !sawUniqueName {
		return fmt.Errorf("description has no [experiment] uniquename")
	}
	return nil
}

// ParseFile opens path and parses it into a fresh run on the cache.
func ParseFile(path string, c *cache.Cache) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open description: %w", err)
	}
	defer func() { _ = f.Close() }()
	run := NewRun(c)
	if err := Parse(f, run); err != nil {
		return nil, err
	}
	return run, nil
}

func parseProperty(run *Run, experiment *chado.Experiment, cols []string) error {
	if len(cols) < 2 {
		return fmt.Errorf("experiment property needs name and value")
	}
	prop := &chado.ExperimentProp{Name: cols[0], Value: cols[1], Rank: len(experiment.Properties)}
	h, err := run.Put(prop)
	if err != nil {
		return err
	}
	experiment.Properties = append(experiment.Properties, h)
	return nil
}

func parseTermSource(run *Run, cols []string) error {
	if len(cols) < 1 || cols[0] == "" {
		return fmt.Errorf("term source needs a name")
	}
	db := &chado.DB{Name: cols[0]}
	if len(cols) > 1 {
		db.URL = cols[1]
	}
	h, err := run.Put(db)
	if err != nil {
		return err
	}
	run.TermSources[db.Name] = h
	return nil
}

func parseProtocol(run *Run, cols []string) error {
	if len(cols) < 1 || cols[0] == "" {
		return fmt.Errorf("protocol needs a name")
	}
	protocol := &chado.Protocol{Name: cols[0]}
	if len(cols) > 1 && cols[1] != "" {
		typ, err := run.Term(cols[1])
		if err != nil {
			return err
		}
		protocol.Type = typ
	}
	if len(cols) > 2 {
		protocol.Description = cols[2]
	}
	h, err := run.Put(protocol)
	if err != nil {
		return err
	}
	run.Protocols[protocol.Name] = h
	return nil
}

func parseDatum(run *Run, cols []string) error {
	if len(cols) < 3 {
		return fmt.Errorf("datum needs key, heading and value")
	}
	key := cols[0]
	if key == "" {
		return fmt.Errorf("datum key empty")
	}
	if _, dup := run.Data[key]; dup {
		return fmt.Errorf("datum %q defined twice", key)
	}
	d := &chado.Datum{Heading: cols[1], Name: key, Value: cols[2]}
	if len(cols) > 3 {
		d.TypeName = cols[3]
	}
	if len(cols) > 4 {
		d.TermSource = cols[4]
	}
	h, err := run.Put(d)
	if err != nil {
		return err
	}
	run.Data[key] = h
	return nil
}

func parseApplied(run *Run, experiment *chado.Experiment, cols []string) error {
	if len(cols) < 1 || cols[0] == "" {
		return fmt.Errorf("applied protocol needs a protocol name")
	}
	protocol, ok := run.Protocols[cols[0]]
	if !ok {
		return fmt.Errorf("applied protocol references unknown protocol %q", cols[0])
	}
	ap := &chado.AppliedProtocol{Protocol: protocol}
	var err error
	if len(cols) > 1 {
		ap.Inputs, err = resolveData(run, cols[1])
		if err != nil {
			return err
		}
	}
	if len(cols) > 2 {
		ap.Outputs, err = resolveData(run, cols[2])
		if err != nil {
			return err
		}
	}
	h, err := run.Put(ap)
	if err != nil {
		return err
	}
	run.Applied = append(run.Applied, h)
	// Each input datum back-links its consuming step. The experiment anchors
	// only the first step of a chain; later steps are reachable through these
	// back-links on the shared data.
	for _, in := range ap.Inputs {
		d, err := materialize[*chado.Datum](run.Cache, in)
		if err != nil {
			return err
		}
		d.AppliedProtocols = append(d.AppliedProtocols, h)
	}
	if len(ap.Inputs) == 0 || len(experiment.AppliedProtocols) == 0 {
		experiment.AppliedProtocols = append(experiment.AppliedProtocols, h)
	}
	return nil
}

func resolveData(run *Run, spec string) ([]*cache.Handle, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	var handles []*cache.Handle
	for _, key := range strings.Split(spec, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		h, ok := run.Data[key]
		if !ok {
			return nil, fmt.Errorf("unknown datum %q", key)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// parseAttribute records the raw row; the attribute-expansion validator turns
// rows into entities once all data are known, so attribute lines may precede
// their datum.
func parseAttribute(run *Run, cols []string, line int) error {
	if len(cols) < 4 {
		return fmt.Errorf("attribute needs datum key, heading, name and value")
	}
	if cols[0] == "" {
		return fmt.Errorf("attribute datum key empty")
	}
	run.AttributeRows = append(run.AttributeRows, AttributeRow{
		DatumKey: cols[0],
		Heading:  cols[1],
		Name:     cols[2],
		Value:    cols[3],
		Line:     line,
	})
	return nil
}

func parseFeature(run *Run, cols []string) error {
	if len(cols) < 3 {
		return fmt.Errorf("feature needs datum key, id and uniquename")
	}
	datum, ok := run.Data[cols[0]]
	if !ok {
		return fmt.Errorf("feature references unknown datum %q", cols[0])
	}
	id := cols[1]
	if id == "" {
		id = run.NextID(chado.TypeFeature)
	}
	feature := &chado.Feature{UniqueName: cols[2]}
	if len(cols) > 3 && cols[3] != "" {
		typ, err := run.Term(cols[3])
		if err != nil {
			return err
		}
		feature.Type = typ
	}
	if len(cols) > 5 && cols[4] != "" && cols[5] != "" {
		organism, err := run.Organism(cols[4], cols[5])
		if err != nil {
			return err
		}
		feature.Organism = organism
	}
	h, err := run.Cache.Put(chado.TypeFeature, id, feature)
	if err != nil {
		return err
	}
	d, err := materialize[*chado.Datum](run.Cache, datum)
	if err != nil {
		return err
	}
	d.Features = append(d.Features, h)
	return nil
}
