// Package integration_test provides integration tests for the juicebot server.
//
// All interactions use the same interface as production: SSH sessions talking
// in the room. Direct calls on the test server are only used for setup and for
// verification that would be needlessly complex through the room.
//
// A separate binary (bin/integration_test/main.go) runs these tests and leaves
// the server running afterward, so developers can connect and poke at the
// scripts the run left behind.
package integration_test

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	greeterCode = `proxy("join", (p) => send("Welcome, " + p.user + "!")); command(["echo42", "e42"], () => send("42"));`
	counterCode = `command("count", () => { const n = Number(storage.get("n") || "0") + 1; storage.set("n", String(n)); send("count is " + n); });`
)

// RunAll runs the integration flow in sequence on a single server.
// Returns nil on success, or an error describing what failed.
func RunAll(ts *TestServer) error {
	fmt.Println("Testing operator and user login...")
	op, err := ts.Operator()
	if err != nil {
		return fmt.Errorf("operator login: %w", err)
	}
	defer op.Close()
	alice, err := ts.User("alice")
	if err != nil {
		return fmt.Errorf("alice login: %w", err)
	}
	defer alice.Close()
	op.drain()

	fmt.Println("Testing the seeded script...")
	if _, err := op.runScript("$test"); err != nil {
		return err
	}
	if _, err := alice.say("@bot test", botSaid("Test script reporting in, alice!")); err != nil {
		return err
	}

	fmt.Println("Testing save with confirmation...")
	if err := op.saveScript("greeter", greeterCode); err != nil {
		return err
	}
	output, err := op.runScript("greeter")
	if err != nil {
		return err
	}
	if !strings.Contains(output, "Registered 1 command and 1 client listener") {
		return fmt.Errorf("greeter registered the wrong handlers: %q", output)
	}

	fmt.Println("Testing commands and listeners...")
	if _, err := alice.say("@bot e42", botSaid("42")); err != nil {
		return err
	}
	bob, err := ts.User("bob")
	if err != nil {
		return fmt.Errorf("bob login: %w", err)
	}
	if output, ok := alice.waitFor(botSaid("Welcome, bob!"), defaultWaitTimeout); !ok {
		bob.Close()
		return fmt.Errorf("greeter never welcomed bob: %q", output)
	}
	bob.Close()

	fmt.Println("Testing script storage...")
	if err := op.saveScript("counter", counterCode); err != nil {
		return err
	}
	if _, err := op.runScript("counter"); err != nil {
		return err
	}
	if _, err := alice.say("@bot count", botSaid("count is 1")); err != nil {
		return err
	}
	if _, err := alice.say("@bot count", botSaid("count is 2")); err != nil {
		return err
	}
	if _, err := op.say("@bot restart counter", botSaid("✅: Script counter has been run!")); err != nil {
		return err
	}
	if _, err := alice.say("@bot count", botSaid("count is 3")); err != nil {
		return err
	}

	fmt.Println("Testing stop...")
	if _, err := op.say("@bot stop greeter", botSaid("✅: Script has been stopped!")); err != nil {
		return err
	}
	if !ts.waitForRunning("greeter", false, defaultWaitTimeout) {
		return fmt.Errorf("greeter still running after stop")
	}
	if err := alice.silent("@bot e42", botSaid("42"), 500*time.Millisecond); err != nil {
		return fmt.Errorf("stopped greeter still answered: %w", err)
	}

	fmt.Println("Testing delete with confirmation...")
	if err := op.confirm("@bot delete greeter", "Are you sure you want to delete `greeter`?", "trash"); err != nil {
		return err
	}
	if _, ok := op.waitFor(botSaid("✅: Script greeter deleted!"), defaultWaitTimeout); !ok {
		return fmt.Errorf("greeter never deleted")
	}

	fmt.Println("Testing list...")
	if _, err := op.say("@bot list", botSaid("2 scripts.")); err != nil {
		return err
	}
	exists, err := ts.Storage().Exists(context.Background(), "greeter")
	if err != nil {
		return fmt.Errorf("checking greeter: %w", err)
	}
	if exists {
		return fmt.Errorf("greeter still stored after delete")
	}
	return nil
}
