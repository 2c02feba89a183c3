// Package protocol opens a stream source from a URL or file path.
package protocol

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"streamripper/src/protocol/flv"
	"streamripper/src/protocol/httpflv"
	"streamripper/src/protocol/rtmp"
	"streamripper/src/video"
)

type Options struct {
	// HTTPClient is used for http(s) sources. nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Open dispatches on the URL scheme:
//
//	file path, file://   FLV file
//	http://, https://    HTTP-FLV pull
//	rtmp://host:port/app/name   listen for a publisher on host:port
func Open(ctx context.Context, rawURL string, opts Options) (video.Source, error) {
	var (
		src video.Source
		err error
	)
	u, perr := url.Parse(rawURL)
	if perr != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare paths, including windows drive letters
		return asSource(flv.OpenFile(rawURL))
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		src, err = asSource(flv.OpenFile(u.Path))
	case "http", "https":
		src, err = asSource(httpflv.Dial(ctx, rawURL, opts.HTTPClient))
	case "rtmp":
		var s *rtmp.Source
		if s, err = rtmp.ListenAndAccept(ctx, rawURL); err == nil {
			src = s
		}
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

func asSource(d *flv.Demuxer, err error) (video.Source, error) {
	if err != nil {
		return nil, err
	}
	return d, nil
}
