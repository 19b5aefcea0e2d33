package main

import "github.com/goplus/llpack/cmd/llpack/internal"

func main() {
	internal.Execute()
}
