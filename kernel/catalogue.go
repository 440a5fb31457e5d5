package kernel

import "github.com/zhengguan/15410-sub000/defs"

// Section_t names one loadable segment of a catalogue image: a
// simplified ELF is a table of {name, file-offset, memory-address,
// length} triples rather than a real ELF program-header array.
type Section_t struct {
	Name    string // ".text", ".rodata", ".data", ".bss"
	FileOff int
	MemAddr int
	Length  int
}

// Image_t is one catalogue entry: an executable's entry point, its
// section table, and the raw bytes FileOff/Length index into. A .bss
// section's Length may exceed the readable span of Data (the remainder
// is zero-filled), matching a real ELF's NOBITS semantics.
type Image_t struct {
	Name     string
	Entry    int
	Sections []Section_t
	Data     []byte
}

func (img *Image_t) section(name string) (Section_t, bool) {
	for _, s := range img.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section_t{}, false
}

// bytesFor returns the on-file bytes for a section, zero-extended to its
// full in-memory Length (covering .bss, whose file span is typically
// shorter than or absent from Data).
func (img *Image_t) bytesFor(s Section_t) []byte {
	out := make([]byte, s.Length)
	if s.FileOff >= 0 && s.FileOff < len(img.Data) {
		n := copy(out, img.Data[s.FileOff:])
		_ = n
	}
	return out
}

// Catalogue_t is the kernel's boot catalogue: a fixed table
// mapping executable names to in-kernel byte ranges. Exec resolves
// names here; the P4 disk's name lookup (package fs) backs the separate
// readfile/sizefile surface.
type Catalogue_t struct {
	images map[string]*Image_t
}

// NewCatalogue returns an empty catalogue; Register populates it at
// bootstrap (L8) time, standing in for the build-time image baked into
// a real kernel binary.
func NewCatalogue() *Catalogue_t {
	return &Catalogue_t{images: make(map[string]*Image_t)}
}

// Register adds (or replaces) a named catalogue entry.
func (c *Catalogue_t) Register(img *Image_t) {
	c.images[img.Name] = img
}

// Lookup returns the named catalogue entry.
func (c *Catalogue_t) Lookup(name string) (*Image_t, defs.Err_t) {
	img, ok := c.images[name]
	if !ok {
		return nil, -defs.ENOENT
	}
	return img, 0
}
