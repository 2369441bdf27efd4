package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// Generates a word-frequency input file for cmd/shuffle-demo.
func main() {
	os.MkdirAll("data/inputs", 0755)

	words := []string{
		"shuffle", "block", "split", "merge", "fetch",
		"worker", "marker", "queue", "combine", "partition",
	}

	fmt.Println("Generating data/inputs/shuffle_words.txt ...")
	var sb strings.Builder
	for i := 0; i < 5000; i++ {
		line := make([]string, 8)
		for j := range line {
			line[j] = words[rand.Intn(len(words))]
		}
		sb.WriteString(strings.Join(line, " "))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile("data/inputs/shuffle_words.txt", []byte(sb.String()), 0644); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	fmt.Println("Done.")
}
