package filetype

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Info contains detected file type information.
type Info struct {
	MIMEType  string
	Extension string
	IsPDF     bool
}

// Detector identifies file types by magic bytes, never by filename. The
// paging engine only accepts PDF sources; everything else is rejected
// before a decoder is built.
type Detector struct{}

// New creates a new file type detector.
func New() *Detector {
	return &Detector{}
}

// DetectFile sniffs a file on disk.
func (d *Detector) DetectFile(path string) (*Info, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	return d.info(mtype), nil
}

// DetectBytes sniffs an in-memory buffer. A prefix of a few hundred bytes
// is enough; mimetype only reads the header it needs.
func (d *Detector) DetectBytes(data []byte) *Info {
	return d.info(mimetype.Detect(data))
}

func (d *Detector) info(mtype *mimetype.MIME) *Info {
	info := &Info{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		IsPDF:     mtype.Is("application/pdf"),
	}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Msg("detected file type")
	return info
}
