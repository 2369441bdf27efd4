package shuffle

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Wire addressing, relative to a split server's base URI:
//
//	{base}/shuffle/{shuffleId}/{mapTask}/BLOCKNUM-{partition}   marker
//	{base}/shuffle/{shuffleId}/{mapTask}/{partition}-{block}    block

func markerURL(baseURI string, shuffleID, mapTask, partition int) string {
	return fmt.Sprintf("%s/shuffle/%d/%d/BLOCKNUM-%d", baseURI, shuffleID, mapTask, partition)
}

func blockURL(baseURI string, shuffleID, mapTask, partition, blockIndex int) string {
	return fmt.Sprintf("%s/shuffle/%d/%d/%d-%d", baseURI, shuffleID, mapTask, partition, blockIndex)
}

// fetchBytes GETs a URL and reads the full declared content length
// before releasing the connection. Short reads are retried by
// io.ReadFull's loop; a stream that ends before the declared length is
// a transient failure (the caller leaves the split eligible for retry).
func fetchBytes(client *http.Client, url string) ([]byte, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}
	if resp.ContentLength < 0 {
		buf, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", url, err)
		}
		return buf, nil
	}
	buf := make([]byte, resp.ContentLength)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		// Premature end of stream: transient, retried by the scheduler.
		return nil, fmt.Errorf("short read from %s: %w", url, err)
	}
	return buf, nil
}

// fetchMarker fetches and parses a split's block count marker.
func fetchMarker(client *http.Client, baseURI string, shuffleID, mapTask, partition int) (int, error) {
	raw, err := fetchBytes(client, markerURL(baseURI, shuffleID, mapTask, partition))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad block count marker %q", string(raw))
	}
	return n, nil
}
