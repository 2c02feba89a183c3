// Package httpflv pulls an FLV stream over HTTP.
package httpflv

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"streamripper/src/protocol/flv"
)

const USER_AGENT = "streamripper/1.0"

// Dial issues a GET for url and demuxes the response body. Credentials in
// the URL are sent as basic auth. Cancelling ctx aborts the transfer.
func Dial(ctx context.Context, url string, client *http.Client) (*flv.Demuxer, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept", "video/x-flv, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("http-flv: unexpected status %s", resp.Status)
	}

	log := logrus.WithFields(logrus.Fields{
		"component":    "httpflv",
		"content_type": resp.Header.Get("Content-Type"),
	})
	d, err := flv.NewDemuxer(resp.Body, log)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	log.Debug("http-flv stream opened")
	return d, nil
}
