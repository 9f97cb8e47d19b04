// Command livenessd serves fingerprint liveness analysis and runs it offline
// over captured frames.
package main

func main() {
	Execute()
}
