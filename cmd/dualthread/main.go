package main

func main() {
	// the job of main is to parse the command line, perform minimal configuration and then launch the
	// Host. Everything else is configured through the environment.
	Execute()
}
