package chromelens

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"golang.org/x/exp/slices"
)

// forceIP tries to force the host component in urlstr to be an IP address.
//
// Since Chrome 66+, Chrome DevTools Protocol clients connecting to a browser
// must send the "Host:" header as either an IP address, or "localhost".
// See https://github.com/chromium/chromium/commit/0e914b95f7cae6e8238e4e9075f248f801c686e6.
func forceIP(ctx context.Context, urlstr string) (string, error) {
	u, err := url.Parse(urlstr)
	if err != nil {
		return "", err
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", err
	}
	host, err = resolveHost(ctx, host)
	if err != nil {
		return "", err
	}
	u.Host = net.JoinHostPort(host, port)
	return u.String(), nil
}

// resolveHost tries to resolve a host to be an IP address. If the host is
// an IP address or "localhost", it returns the host directly.
func resolveHost(ctx context.Context, host string) (string, error) {
	if host == "localhost" {
		return host, nil
	}
	ip := net.ParseIP(host)
	if ip != nil {
		return host, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}

	return addrs[0].IP.String(), nil
}

// discoverWebSocketURL discovers the websocket debugger URL if the provided
// URL is not already a valid websocket debugger URL.
//
// A websocket debugger URL containing "/devtools/browser/" is considered
// valid already; in that case urlstr is only modified by forceIP.
//
// Otherwise, it constructs a URL like http://[host]:[port]/json/version and
// queries the endpoint for the real websocket debugger URL. The [host] and
// [port] are parsed from urlstr; if the host is not an IP it is resolved
// first. Example parameters:
//   - ws://127.0.0.1:9222/
//   - http://127.0.0.1:9222/
//   - http://container-name:9222/
func discoverWebSocketURL(ctx context.Context, urlstr string) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if strings.Contains(urlstr, "/devtools/browser/") {
		return forceIP(lctx, urlstr)
	}

	u, err := url.Parse(urlstr)
	if err != nil {
		return "", err
	}
	u.Scheme = "http"
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", err
	}
	host, err = resolveHost(ctx, host)
	if err != nil {
		return "", err
	}
	u.Host = net.JoinHostPort(host, port)
	u.Path = "/json/version"

	req, err := http.NewRequestWithContext(lctx, "GET", u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	wsURL, _ := result["webSocketDebuggerUrl"].(string)
	if wsURL == "" {
		return "", ErrEndpointDiscoveryFailed
	}
	return wsURL, nil
}

func runListeners(list []cancelableListener, ev any) []cancelableListener {
	for i := 0; i < len(list); {
		listener := list[i]
		select {
		case <-listener.ctx.Done():
			list = slices.Delete(list, i, i+1)
			continue
		default:
			listener.fn(ev)
			i++
		}
	}
	return list
}

// frameState is a bit flag describing a frame's lifecycle state.
type frameState uint32

const (
	frameStateAttached frameState = 1 << iota
	frameStateLoading
)

// frameOp is a frame manipulation operation applied under frameMu.
type frameOp func(*frameNode)

func frameAttached(id cdp.FrameID) frameOp {
	return func(f *frameNode) {
		f.ParentID = id
		f.state |= uint32(frameStateAttached)
	}
}

func frameDetached(f *frameNode) {
	f.ParentID = ""
	f.state &^= uint32(frameStateAttached)
}

func frameStartedLoading(f *frameNode) {
	f.state |= uint32(frameStateLoading)
}

func frameStoppedLoading(f *frameNode) {
	f.state &^= uint32(frameStateLoading)
}
