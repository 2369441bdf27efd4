package shuffle

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// nextShuffleID is process-wide: every shuffle started in this process
// gets a fresh id.
var nextShuffleID atomic.Int64

// NewShuffleID allocates the next shuffle id.
func NewShuffleID() int {
	return int(nextShuffleID.Add(1))
}

// BlockStore manages the on-disk layout of shuffle output under a
// private, process-unique root directory:
//
//	{root}/{shuffleId}/{mapTask}/{partition}-{blockIndex}   block files
//	{root}/{shuffleId}/{mapTask}/BLOCKNUM-{partition}       block count markers
type BlockStore struct {
	root string
}

// NewBlockStore allocates the private root under localRootDir. Root
// creation is retried with a fresh identifier up to 10 times; running
// out of attempts is a startup failure the caller should treat as fatal.
func NewBlockStore(localRootDir string) (*BlockStore, error) {
	for attempt := 0; attempt < 10; attempt++ {
		root := filepath.Join(localRootDir, "shuffle-"+uuid.New().String())
		if err := os.Mkdir(root, 0755); err != nil {
			log.Printf("[BlockStore] Root %s unavailable (attempt %d): %v", root, attempt+1, err)
			continue
		}
		log.Printf("[BlockStore] Shuffle root: %s", root)
		return &BlockStore{root: root}, nil
	}
	return nil, fmt.Errorf("could not create shuffle root under %s after 10 attempts", localRootDir)
}

// Root returns the private root directory, the tree a file server
// should expose.
func (s *BlockStore) Root() string { return s.root }

func (s *BlockStore) splitDir(shuffleID, mapTask int) string {
	return filepath.Join(s.root, fmt.Sprintf("%d", shuffleID), fmt.Sprintf("%d", mapTask))
}

// BlockPath returns the on-disk path of one block file.
func (s *BlockStore) BlockPath(shuffleID, mapTask, partition, blockIndex int) string {
	return filepath.Join(s.splitDir(shuffleID, mapTask), fmt.Sprintf("%d-%d", partition, blockIndex))
}

// MarkerPath returns the on-disk path of a block count marker.
func (s *BlockStore) MarkerPath(shuffleID, mapTask, partition int) string {
	return filepath.Join(s.splitDir(shuffleID, mapTask), fmt.Sprintf("BLOCKNUM-%d", partition))
}

// CreateBlockFile opens a writable sink for one block, creating the
// split directory if needed.
func (s *BlockStore) CreateBlockFile(shuffleID, mapTask, partition, blockIndex int) (*os.File, error) {
	dir := s.splitDir(shuffleID, mapTask)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating split dir %s: %w", dir, err)
	}
	return os.Create(s.BlockPath(shuffleID, mapTask, partition, blockIndex))
}

// CreateMarkerFile opens a writable sink for a block count marker.
func (s *BlockStore) CreateMarkerFile(shuffleID, mapTask, partition int) (*os.File, error) {
	dir := s.splitDir(shuffleID, mapTask)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating split dir %s: %w", dir, err)
	}
	return os.Create(s.MarkerPath(shuffleID, mapTask, partition))
}

// OpenBlockFile opens an existing block for reading.
func (s *BlockStore) OpenBlockFile(shuffleID, mapTask, partition, blockIndex int) (*os.File, error) {
	return os.Open(s.BlockPath(shuffleID, mapTask, partition, blockIndex))
}

// OpenMarkerFile opens an existing marker for reading.
func (s *BlockStore) OpenMarkerFile(shuffleID, mapTask, partition int) (*os.File, error) {
	return os.Open(s.MarkerPath(shuffleID, mapTask, partition))
}

// Cleanup removes the private root and everything under it.
func (s *BlockStore) Cleanup() {
	os.RemoveAll(s.root)
}
