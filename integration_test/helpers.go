package integration_test

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const defaultWaitTimeout = 5 * time.Second

// botLine matches a line posted by the bot, capturing the message id.
var botLine = regexp.MustCompile(`\[(\d+)\] ` + regexp.QuoteMeta(botName) + `: `)

// waitForCondition polls condition every interval until it returns true or timeout expires.
func waitForCondition(timeout time.Duration, interval time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return condition()
}

// botSaid returns what the bot would print when posting content.
func botSaid(content string) string {
	return "] " + botName + ": " + content
}

// say posts line to the room and waits until expected is printed.
func (tc *terminalClient) say(line string, expected string) (string, error) {
	if err := tc.sendLine(line); err != nil {
		return "", err
	}
	output, ok := tc.waitFor(expected, defaultWaitTimeout)
	if !ok {
		return output, fmt.Errorf("%s said %q, never saw %q in %q", tc.user, line, expected, output)
	}
	return output, nil
}

// confirm posts line, waits for the bot to ask prompt, and reacts to the prompt with answer.
func (tc *terminalClient) confirm(line string, prompt string, answer string) error {
	output, err := tc.say(line, botSaid(prompt))
	if err != nil {
		return err
	}
	idx := strings.LastIndex(output, botSaid(prompt))
	// Include the "[id" preceding the match.
	start := strings.LastIndex(output[:idx], "[")
	if start == -1 {
		return fmt.Errorf("no message id before prompt in %q", output)
	}
	match := botLine.FindStringSubmatch(output[start:])
	if match == nil {
		return fmt.Errorf("no message id in %q", output[start:])
	}
	return tc.sendLine(fmt.Sprintf("/react %s %s", match[1], answer))
}

// saveScript stores code as name through the bot, confirming the save prompt.
func (tc *terminalClient) saveScript(name string, code string) error {
	if err := tc.confirm(fmt.Sprintf("@%s save %s %s", botName, name, code), "Save script `"+name+"`?", "yes"); err != nil {
		return err
	}
	if output, ok := tc.waitFor(botSaid("✅: Script `"+name+"` saved!"), defaultWaitTimeout); !ok {
		return fmt.Errorf("saving %q never finished: %q", name, output)
	}
	return nil
}

// runScript runs name through the bot and waits for the report.
func (tc *terminalClient) runScript(name string) (string, error) {
	return tc.say(fmt.Sprintf("@%s run %s", botName, name), botSaid("✅: Script "+name+" has been run!"))
}
