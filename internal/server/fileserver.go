package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
)

// FileServer exposes a shuffle root directory over HTTP so fetchers on
// other nodes can pull blocks. It is deliberately dumb: static files
// under /shuffle/, nothing else.
type FileServer struct {
	listener net.Listener
	srv      *http.Server
	sem      chan struct{} // caps concurrent sends
}

// Start serves root on the given port (0 picks a free one) and begins
// accepting requests. maxConcurrentSends bounds simultaneous
// transfers; extra requests wait.
func Start(root string, port, maxConcurrentSends int) (*FileServer, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("file server listen: %w", err)
	}

	fs := &FileServer{
		listener: ln,
		sem:      make(chan struct{}, maxConcurrentSends),
	}
	files := http.StripPrefix("/shuffle/", http.FileServer(http.Dir(root)))
	mux := http.NewServeMux()
	mux.Handle("/shuffle/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.sem <- struct{}{}
		defer func() { <-fs.sem }()
		files.ServeHTTP(w, r)
	}))
	fs.srv = &http.Server{Handler: mux}

	go func() {
		if err := fs.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[FileServer] Serve error: %v", err)
		}
	}()
	log.Printf("[FileServer] Serving %s at %s", root, fs.URI())
	return fs, nil
}

// URI returns the base URI fetchers should prepend to block paths.
func (fs *FileServer) URI() string {
	port := fs.listener.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("http://%s", net.JoinHostPort(hostname(), fmt.Sprintf("%d", port)))
}

func (fs *FileServer) Stop() {
	fs.srv.Close()
}

func hostname() string {
	// Good enough for single-host runs and tests; a cluster deployment
	// would advertise its routable address here.
	return "localhost"
}
