// Command modloaderctl is a development aid around the crate loader: it
// inspects object files, disassembles their code sections, and can drive a
// load against an in-memory stand-in for the kernel's memory subsystem. It
// is not part of the loader itself.
package main

func main() {
	Execute()
}
