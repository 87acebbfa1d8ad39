package dict

import (
	"io"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// WriteJSON writes the dictionary totals, and every size list with its census
// and chunk addresses, to w as one JSON object.
func (d *Dictionary) WriteJSON(w io.Writer) error {
	jw := jwriter.NewWriter()
	d.WriteJSONTo(&jw)
	if err := jw.Error(); err != nil {
		return err
	}
	_, err := w.Write(jw.Bytes())
	return err
}

// WriteJSONTo writes the same object as WriteJSON as the next value of jw, so
// callers can nest it inside a larger document.
func (d *Dictionary) WriteJSONTo(jw *jwriter.Writer) {
	obj := jw.Object()
	obj.Name("start").Int(int(d.mem.Start))
	obj.Name("words").Int(int(d.mem.Words))
	obj.Name("totalSize").Int(int(d.totalSize))
	obj.Name("freeBlocks").Int(int(d.totalFreeBlocks))
	obj.Name("maxChunkSize").Int(int(d.MaxChunkSize()))
	obj.Name("treeHeight").Int(d.TreeHeight())

	lists := obj.Name("lists").Array()
	d.Ascend(func(l SizeList) bool {
		writeListJSON(jw, l)
		return true
	})
	lists.End()
	obj.End()
}

func writeListJSON(jw *jwriter.Writer, l SizeList) {
	s := l.stats()
	obj := jw.Object()
	obj.Name("size").Int(int(l.Size()))
	obj.Name("count").Int(int(l.Count()))
	obj.Name("host").Int(int(l.host.Addr()))
	obj.Maybe("hint", l.Hint() != 0).Int(int(l.Hint()))

	census := obj.Name("census").Object()
	census.Name("desired").Int(int(s.Desired))
	census.Name("coalDesired").Int(int(s.CoalDesired))
	census.Name("surplus").Int(int(s.Surplus))
	census.Name("bfrSurp").Int(int(s.BfrSurp))
	census.Name("prevSweep").Int(int(s.PrevSweep))
	census.Name("beforeSweep").Int(int(s.BeforeSweep))
	census.Name("coalBirths").Int(int(s.CoalBirths))
	census.Name("coalDeaths").Int(int(s.CoalDeaths))
	census.Name("splitBirths").Int(int(s.SplitBirths))
	census.Name("splitDeaths").Int(int(s.SplitDeaths))
	census.Name("returnedBytes").Int(int(s.ReturnedBytes))
	census.End()

	chunks := obj.Name("chunks").Array()
	l.Each(func(c Chunk) bool {
		jw.Int(int(c.Addr()))
		return true
	})
	chunks.End()
	obj.End()
}
