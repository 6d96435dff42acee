// Package main is the entry point for procgate.
package main

func main() {
	Execute()
}
