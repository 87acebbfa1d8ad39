package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/freetree/internal/format"
)

func init() {
	rootCmd.AddCommand(newLayoutCmd())
}

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Show the free chunk header layout",
		Long: `The layout command prints the byte layout of the header stored at the
start of every free chunk, and of the size list control block carried by the
first chunk of each list.

Example:
  freetreectl layout`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(args)
		},
	}
}

type layoutField struct {
	Offset int
	Name   string
	Desc   string
}

var chunkFields = []layoutField{
	{format.ChunkSizeOffset, "size", "chunk size in words"},
	{format.ChunkFlagsOffset, "flags", "bit 0 free, bit 1 can't coalesce"},
	{format.ChunkNextOffset, "next", "next chunk on the size list"},
	{format.ChunkPrevOffset, "prev", "previous chunk on the size list"},
	{format.ChunkListOffset, "list", "host chunk of the owning list"},
}

var listFields = []layoutField{
	{format.ListHeadOffset, "head", "first chunk on the list"},
	{format.ListTailOffset, "tail", "last chunk on the list"},
	{format.ListCountOffset, "count", "chunks on the list"},
	{format.ListParentOffset, "parent", "parent list in the size tree"},
	{format.ListLeftOffset, "left", "smaller sizes"},
	{format.ListRightOffset, "right", "larger sizes"},
	{format.ListHintOffset, "hint", "larger size with a surplus (0 if none)"},
	{format.ListStatsOffset, "stats", "census slot"},
}

func runLayout(_ []string) error {
	printInfo("Word size: %d bytes, link fields: %d bytes, nil link: %#x\n\n",
		format.WordSize, format.FieldSize, uint32(format.NilRef))

	printInfo("Chunk header (%d bytes):\n", format.ChunkHeaderSize)
	printFields(chunkFields)

	printInfo("\nSize list block (%d bytes with the header):\n", format.TreeChunkSize)
	printFields(listFields)

	printInfo("\nSmallest chunk: %d words\n", format.WordsFor(format.TreeChunkSize))
	return nil
}

func printFields(fields []layoutField) {
	for _, f := range fields {
		printInfo("  0x%02x  %-7s %s\n", f.Offset, f.Name, f.Desc)
	}
}
