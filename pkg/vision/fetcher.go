package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

var ErrTooLarge = errors.New("image exceeds size limit")

// Attachment is the subset of a chat attachment the fetcher needs.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
	Size        int64
}

// Image is a downscaled JPEG ready to hand to a vision model.
type Image struct {
	Filename string
	Data     []byte
}

type Fetcher struct {
	client        *http.Client
	maxBytes      int64
	maxDimension  int
	maxConcurrent int
}

// safeTransport returns an http.Transport with a DialContext that prevents SSRF
func safeTransport(allowLocalIPs bool) *http.Transport {
	return &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address: %w", err)
			}

			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve host: %w", err)
			}

			var safeIP net.IP
			for _, ip := range ips {
				if !allowLocalIPs {
					if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
						continue
					}
				}
				safeIP = ip
				break
			}

			if safeIP == nil {
				return nil, fmt.Errorf("blocked access to restricted IP(s) for host: %s", host)
			}

			dialer := &net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(safeIP.String(), port))
		},
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}
}

func NewFetcher(maxBytes int64, maxDimension, maxConcurrent int) *Fetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: safeTransport(false),
		},
		maxBytes:      maxBytes,
		maxDimension:  maxDimension,
		maxConcurrent: maxConcurrent,
	}
}

// SetAllowLocalIPs enables/disables local IP access (for testing)
func (f *Fetcher) SetAllowLocalIPs(allow bool) {
	f.client.Transport = safeTransport(allow)
}

// Oversized reports whether the declared size already exceeds the limit.
func (f *Fetcher) Oversized(att Attachment) bool {
	return att.Size > f.maxBytes
}

// FetchAll downloads and downscales attachments in parallel. Failed or
// oversized attachments are skipped; the rest keep their input order.
func (f *Fetcher) FetchAll(ctx context.Context, attachments []Attachment) []Image {
	results := make([]*Image, len(attachments))

	var g errgroup.Group
	g.SetLimit(f.maxConcurrent)
	for i, att := range attachments {
		if f.Oversized(att) {
			log.Printf("[Vision] Skipping %s: declared size %d exceeds %d bytes", att.Filename, att.Size, f.maxBytes)
			continue
		}
		g.Go(func() error {
			img, err := f.Fetch(ctx, att)
			if err != nil {
				log.Printf("[Vision] Skipping %s: %v", att.Filename, err)
				return nil
			}
			results[i] = img
			return nil
		})
	}
	g.Wait()

	images := make([]Image, 0, len(results))
	for _, img := range results {
		if img != nil {
			images = append(images, *img)
		}
	}
	return images
}

// Fetch downloads a single attachment and re-encodes it as a bounded JPEG.
func (f *Fetcher) Fetch(ctx context.Context, att Attachment) (*Image, error) {
	if f.Oversized(att) {
		return nil, ErrTooLarge
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, ErrTooLarge
	}

	// Read one byte past the limit to detect bodies that lie about their size
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}

	encoded, err := f.downscale(data)
	if err != nil {
		return nil, err
	}

	return &Image{Filename: att.Filename, Data: encoded}, nil
}

func (f *Fetcher) downscale(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if f.maxDimension > 0 && (bounds.Dx() > f.maxDimension || bounds.Dy() > f.maxDimension) {
		img = imaging.Fit(img, f.maxDimension, f.maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
