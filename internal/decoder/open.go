package decoder

import (
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/lazydoc/internal/fetch"
	"github.com/local/lazydoc/internal/filetype"
)

// Open builds the decoder for a source and wraps it in a Handle. Only the
// page count and security metadata are read here; no page is decoded.
//
// Local and in-memory sources go through MuPDF. Remote sources go through
// the range decoder so that open touches only the xref and page tree
// windows of the content. size must come from the fetcher's probe.
func Open(ctx context.Context, src fetch.Source, f fetch.RangeFetcher, size int64, prompt PasswordPrompt) (*Handle, error) {
	dec, err := openDecoder(ctx, src, f, size, prompt)
	if err != nil {
		return nil, err
	}
	if dec.PageCount() <= 0 {
		dec.Close()
		return nil, &CorruptError{Ref: src.Ref(), Err: fmt.Errorf("document has no pages")}
	}
	return NewHandle(dec), nil
}

func openDecoder(ctx context.Context, src fetch.Source, f fetch.RangeFetcher, size int64, prompt PasswordPrompt) (Decoder, error) {
	det := filetype.New()

	switch s := src.(type) {
	case fetch.LocalPath:
		info, err := det.DetectFile(string(s))
		if err != nil {
			return nil, &CorruptError{Ref: src.Ref(), Err: err}
		}
		if !info.IsPDF {
			return nil, &CorruptError{Ref: src.Ref(), Err: fmt.Errorf("not a PDF: %s", info.MIMEType)}
		}
		dec, ferr := openFitzPath(string(s))
		if ferr != nil {
			// MuPDF gives one opaque error for both encryption and
			// corruption; the range decoder can tell them apart and
			// handles the password flow.
			return openRangeFallback(ctx, src, f, size, prompt, ferr)
		}
		crossCheckPageCount(string(s), dec.PageCount())
		return dec, nil

	case fetch.InMemoryBytes:
		if info := det.DetectBytes(s.Data); !info.IsPDF {
			return nil, &CorruptError{Ref: src.Ref(), Err: fmt.Errorf("not a PDF: %s", info.MIMEType)}
		}
		dec, ferr := openFitzMemory(s.Data)
		if ferr != nil {
			return openRangeFallback(ctx, src, f, size, prompt, ferr)
		}
		return dec, nil

	default:
		ra := fetch.NewReaderAt(ctx, f)
		return openRange(ctx, src.Ref(), ra, size, prompt)
	}
}

func openRangeFallback(ctx context.Context, src fetch.Source, f fetch.RangeFetcher, size int64, prompt PasswordPrompt, fitzErr error) (Decoder, error) {
	ra := fetch.NewReaderAt(ctx, f)
	dec, err := openRange(ctx, src.Ref(), ra, size, prompt)
	if err == ErrPasswordRequired || err == ErrInvalidPassword {
		return nil, err
	}
	if err != nil {
		return nil, &CorruptError{Ref: src.Ref(), Err: fitzErr}
	}
	return dec, nil
}

// crossCheckPageCount validates the decoder's page count against an
// independent structural parse. A mismatch is only logged; the open
// decoder stays authoritative.
func crossCheckPageCount(path string, got int) {
	n, err := api.PageCountFile(path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("pdfcpu page count cross-check unavailable")
		return
	}
	if n != got {
		log.Warn().Str("file", path).Int("decoder", got).Int("pdfcpu", n).Msg("page count mismatch between decoders")
	}
}
