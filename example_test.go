// example_test.go: Executable examples for godoc
//
// These examples appear in the generated documentation and are executable.
// Run with: go test -run Example

package nijika_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/agilira/nijika"
)

// ExampleNew demonstrates a logger in sync mode.
func ExampleNew() {
	dir, err := os.MkdirTemp("", "nijika-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	logger, err := nijika.New(&nijika.Config{Path: dir + string(os.PathSeparator)})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Close()

	if _, err := logger.WriteString("Application started\n"); err != nil {
		log.Printf("Warning: failed to write: %v", err)
	}
	if err := logger.Flush(); err != nil {
		log.Fatal(err)
	}

	data, err := os.ReadFile(logger.Stats().CurrentFile)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(string(data))
	// Output: Application started
}

// ExampleLogger_AsyncRun demonstrates switching to async mode and back.
func ExampleLogger_AsyncRun() {
	dir, err := os.MkdirTemp("", "nijika-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	logger, err := nijika.New(&nijika.Config{
		Path:          dir + string(os.PathSeparator),
		BufferSizeStr: "64KB",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Close()

	if err := logger.AsyncRun(); err != nil {
		log.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(logger, "request %d served\n", i)
	}

	// AsyncStop writes everything that is still buffered
	if err := logger.AsyncStop(); err != nil {
		log.Fatal(err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, nijika.FilePrefix+"*.log"))
	data, _ := os.ReadFile(files[0])
	fmt.Print(string(data))
	fmt.Println("async:", logger.IsAsync())
	// Output:
	// request 1 served
	// request 2 served
	// request 3 served
	// async: false
}

// ExampleLogger_standardLibrary demonstrates nijika as the output of the
// standard library logger.
func ExampleLogger_standardLibrary() {
	dir, err := os.MkdirTemp("", "nijika-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	logger, err := nijika.New(&nijika.Config{Path: dir + string(os.PathSeparator)})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Close()

	std := log.New(logger, "[app] ", 0)
	std.Println("using the standard library")

	_ = logger.Flush()
	fmt.Println("lines written:", logger.Stats().LinesWritten)
	// Output: lines written: 1
}

// ExampleParseSize demonstrates string-based size parsing.
func ExampleParseSize() {
	for _, s := range []string{"64MB", "8k", "1G"} {
		size, err := nijika.ParseSize(s)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s = %d bytes\n", s, size)
	}
	// Output:
	// 64MB = 67108864 bytes
	// 8k = 8192 bytes
	// 1G = 1073741824 bytes
}
