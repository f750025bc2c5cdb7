package memvfs_test

import (
	"errors"
	"fmt"

	"github.com/kmrgirish/memvfs"
)

func Example() {
	fsys := memvfs.New(memvfs.Options{})

	fd, err := fsys.Open("greeting", memvfs.O_CREATE|memvfs.O_RDWR)
	if err != nil {
		panic(err)
	}
	fsys.Write(fd, []byte("hello, world"))

	// the name goes away but the open descriptor still works
	fsys.Unlink("greeting")
	fsys.Seek(fd, 7, memvfs.SeekStart)
	buf := make([]byte, 5)
	fsys.Read(fd, buf)
	fmt.Println(string(buf))

	_, err = fsys.Read(fd, buf)
	fmt.Println(errors.Is(err, memvfs.ErrOutOfRange))

	fsys.Close(fd)
	fmt.Println(fsys.LiveInodes())

	// Output:
	// world
	// true
	// 0
}

func ExampleFilesystem_Rename() {
	fsys := memvfs.New(memvfs.Options{})

	fd, _ := fsys.Open("draft", memvfs.O_CREATE|memvfs.O_WRONLY)
	fsys.Write(fd, []byte("v1"))
	fsys.Close(fd)

	fsys.Rename("draft", "final")
	for _, e := range fsys.ReadDir() {
		fmt.Println(e.Name)
	}

	err := fsys.Rename("draft", "final")
	fmt.Println(err)

	// Output:
	// final
	// rename draft: no such file or directory
}

func ExampleParseFlag() {
	flags, err := memvfs.ParseFlag("creat,rdwr")
	if err != nil {
		panic(err)
	}
	fmt.Println(flags)

	// Output:
	// rdwr|creat
}
