package deploy

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gantry/gantry/models"
)

// Runner executes shell commands on a deployment target. Execute streams the
// command and its output into the deployment log; Output captures stdout
// quietly for commands whose result the pipeline parses.
type Runner interface {
	Execute(cmd string) error
	Output(cmd string) (string, error)
	Origin() string
	Close() error
}

// NewRunner connects a Runner for the target: commands run through a local
// shell for same-host targets and through SSH sessions for remote ones.
func NewRunner(target *models.Target, logger *DeploymentLogger) (Runner, error) {
	if !target.IsRemote() {
		return &LocalRunner{logger: logger}, nil
	}
	return newSSHRunner(target, logger)
}

type LocalRunner struct {
	logger *DeploymentLogger
}

func (r *LocalRunner) Origin() string { return "localhost" }

func (r *LocalRunner) Close() error { return nil }

func (r *LocalRunner) Execute(cmd string) error {
	r.logger.LogCmdStart(r.Origin(), cmd)

	command := exec.Command("/bin/sh", "-c", cmd)

	stderr, err := command.StderrPipe()
	if err != nil {
		return err
	}
	go streamOutput(r.logger, r.Origin(), COMMAND_STDERR_OUTPUT, stderr)

	stdout, err := command.StdoutPipe()
	if err != nil {
		return err
	}
	go streamOutput(r.logger, r.Origin(), COMMAND_STDOUT_OUTPUT, stdout)

	if err := command.Start(); err != nil {
		r.logger.LogCmdFail(r.Origin(), cmd, err)
		return err
	}

	if err := command.Wait(); err != nil {
		r.logger.LogCmdFail(r.Origin(), cmd, err)
		return err
	}

	r.logger.LogCmdSuccess(r.Origin(), cmd)
	return nil
}

func (r *LocalRunner) Output(cmd string) (string, error) {
	out, err := exec.Command("/bin/sh", "-c", cmd).Output()
	return strings.TrimSpace(string(out)), err
}

type SSHRunner struct {
	addr      string
	sshConfig *ssh.ClientConfig
	sshClient *ssh.Client
	logger    *DeploymentLogger
}

func newSSHRunner(target *models.Target, logger *DeploymentLogger) (*SSHRunner, error) {
	sshConfig, err := newSSHClientConfig(target.DeploymentUser, []byte(target.DeploymentSshKey))
	if err != nil {
		return nil, err
	}

	client, err := newSSHClient(target.Host, sshConfig)
	if err != nil {
		return nil, err
	}

	return &SSHRunner{
		addr:      target.Host,
		sshConfig: sshConfig,
		sshClient: client,
		logger:    logger,
	}, nil
}

func (r *SSHRunner) Origin() string { return r.addr }

func (r *SSHRunner) Close() error {
	if r.sshClient != nil {
		return r.sshClient.Close()
	}
	return nil
}

func (r *SSHRunner) Execute(cmd string) error {
	r.logger.LogCmdStart(r.Origin(), cmd)

	session, err := r.sshClient.NewSession()
	if err != nil {
		log.Println("could not create new SSH session", err)
		return err
	}
	defer session.Close()

	stderr, err := session.StderrPipe()
	if err != nil {
		log.Println("could not create new stderr pipe")
		return err
	}
	go streamOutput(r.logger, r.Origin(), COMMAND_STDERR_OUTPUT, stderr)

	stdout, err := session.StdoutPipe()
	if err != nil {
		log.Println("could not create new stdout pipe")
		return err
	}
	go streamOutput(r.logger, r.Origin(), COMMAND_STDOUT_OUTPUT, stdout)

	if err := session.Start(cmd); err != nil {
		r.logger.LogCmdFail(r.Origin(), cmd, err)
		return err
	}

	if err := session.Wait(); err != nil {
		r.logger.LogCmdFail(r.Origin(), cmd, err)
		return err
	}

	r.logger.LogCmdSuccess(r.Origin(), cmd)
	return nil
}

func (r *SSHRunner) Output(cmd string) (string, error) {
	session, err := r.sshClient.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	out, err := session.Output(cmd)
	return strings.TrimSpace(string(out)), err
}

func newSSHClient(host string, sshConfig *ssh.ClientConfig) (*ssh.Client, error) {
	client, err := ssh.Dial("tcp", host, sshConfig)
	if err != nil {
		log.Println("ssh.Dial failed", err)
		return nil, err
	}

	return client, nil
}

func newSSHClientConfig(user string, key []byte) (*ssh.ClientConfig, error) {
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		// TODO: verify host keys against a known_hosts file
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}
	return config, nil
}

func streamOutput(logger *DeploymentLogger, origin string, entryType LogEntryType, r io.Reader) {
	reader := bufio.NewReader(r)

	for {
		line, err := reader.ReadBytes('\n')
		if s := string(line); s != "" {
			logger.LogOutput(origin, entryType, s)
		}
		if err != nil {
			break
		}
	}
}

const heredocDelimiter = "GANTRY_EOF"

// writeFile places content at path on the target through the runner, so the
// same mechanism works locally and over SSH.
func writeFile(r Runner, path, content string) error {
	var cmd bytes.Buffer

	fmt.Fprintf(&cmd, "mkdir -p %s && cat > %s << '%s'\n", shellQuote(parentDir(path)), shellQuote(path), heredocDelimiter)
	cmd.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		cmd.WriteString("\n")
	}
	cmd.WriteString(heredocDelimiter)

	return r.Execute(cmd.String())
}

func parentDir(p string) string {
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

func shellQuote(s string) string {
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}
