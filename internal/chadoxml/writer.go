// Package chadoxml serializes the experiment graph to the macro-based Chado
// XML document. Every entity body is written exactly once; later occurrences,
// including back-edges in cyclic feature graphs, point at the first body's
// macro identifier.
package chadoxml

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"chadograph/internal/cache"
	"chadograph/pkg/chado"
)

// Write walks the graph from root and streams the document to w. Any failure
// to materialize or emit a reachable entity aborts the whole write; partial
// output must be treated as failed.
func Write(w io.Writer, c *cache.Cache, root *cache.Handle) error {
	mw := &macroWriter{
		bw:     bufio.NewWriter(w),
		cache:  c,
		macros: make(map[*cache.Handle]string),
	}
	mw.writeString(xml.Header)
	mw.writeString("<chadoxml>\n")
	if err := mw.emitEntity(root, 1); err != nil {
		return err
	}
	mw.writeString("</chadoxml>\n")
	if err := mw.bw.Flush(); err != nil {
		return fmt.Errorf("chadoxml: write output: %w", err)
	}
	return nil
}

type macroWriter struct {
	bw    *bufio.Writer
	cache *cache.Cache

	// macros maps each handle to its document-local macro identifier. Handles
	// are unique per (type, id), so pointer keys detect shared nodes.
	macros map[*cache.Handle]string
	seq    int
}

// emitEntity writes the full element body for a handle seen for the first
// time. The macro identifier is assigned before recursion so that cycles
// resolve to references instead of infinite descent.
func (w *macroWriter) emitEntity(h *cache.Handle, depth int) error {
	mid := w.assign(h)
	raw, err := w.cache.Materialize(h)
	if err != nil {
		return fmt.Errorf("chadoxml: materialize %s/%s: %w", h.Type(), h.ID(), err)
	}
	entity, ok := raw.(chado.Entity)
	if !ok {
		return fmt.Errorf("chadoxml: %s/%s is not a schema entity", h.Type(), h.ID())
	}

	tag := string(h.Type())
	w.indent(depth)
	w.writeString("<" + tag + " id=\"" + mid + "\">\n")
	for _, sc := range entity.Scalars() {
		w.indent(depth + 1)
		w.writeString("<" + sc.Name + ">")
		w.escape(sc.Value)
		w.writeString("</" + sc.Name + ">\n")
	}
	for _, rel := range entity.Relations() {
		for _, target := range rel.Targets {
			if target == nil {
				continue
			}
			if err := w.emitRelation(rel.Name, target, depth+1); err != nil {
				return err
			}
		}
	}
	w.indent(depth)
	w.writeString("</" + tag + ">\n")
	return nil
}

// emitRelation writes one reference field. An already-assigned target becomes
// a reference element; a compressed handle reached only this way is never
// materialized since its macro identifier suffices.
func (w *macroWriter) emitRelation(name string, h *cache.Handle, depth int) error {
	if mid, seen := w.macros[h]; seen {
		w.indent(depth)
		w.writeString("<" + name + " ref=\"" + mid + "\"/>\n")
		return nil
	}
	w.indent(depth)
	w.writeString("<" + name + ">\n")
	if err := w.emitEntity(h, depth+1); err != nil {
		return err
	}
	w.indent(depth)
	w.writeString("</" + name + ">\n")
	return nil
}

func (w *macroWriter) assign(h *cache.Handle) string {
	w.seq++
	mid := fmt.Sprintf("%s_%d", h.Type(), w.seq)
	w.macros[h] = mid
	return mid
}

// Write errors are sticky on the buffered writer; they surface once from the
// final Flush.
func (w *macroWriter) writeString(s string) {
	_, _ = w.bw.WriteString(s)
}

func (w *macroWriter) escape(s string) {
	_ = xml.EscapeText(w.bw, []byte(s))
}

func (w *macroWriter) indent(depth int) {
	w.writeString(strings.Repeat("  ", depth))
}
