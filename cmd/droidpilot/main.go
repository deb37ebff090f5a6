// Command droidpilot drives an Android device from spoken commands.
package main

import "github.com/devicelab-dev/droidpilot/pkg/cli"

func main() {
	cli.Execute()
}
