package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/gorilla/websocket"

	"github.com/gantry/gantry/deploy"
)

// streamDeploymentLog tails the log websocket of a deployment and prints
// every entry to stdout, until the server closes the stream because the
// deployment reached its outcome.
func streamDeploymentLog(c *Configuration, deploymentLogURL *url.URL) error {
	urlStr := deploymentLogURL.String()
	wsHeaders := http.Header{"Origin": {c.Host}, apiTokenHeaderName: {c.ApiToken}}

	wsConn, _, err := websocket.DefaultDialer.Dial(urlStr, wsHeaders)
	if err != nil {
		return err
	}
	defer wsConn.Close()

	logs := make(chan deploy.LogEntry)
	defer func() {
		close(logs)
	}()

	go deploy.ConsoleLogger(logs)

	for {
		entry := deploy.LogEntry{}
		err := wsConn.ReadJSON(&entry)
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			break
		}
		if err != nil {
			return err
		}

		logs <- entry
	}

	return nil
}

type UnexpectedResponse struct {
	ResponseCode int
	ResponseBody string
}

func (ur UnexpectedResponse) Error() string {
	if ur.ResponseCode == http.StatusUnauthorized {
		return "wrong API token (check `api_token` in " + configurationFileName + ")"
	}
	return fmt.Sprintf("%d - %s", ur.ResponseCode, ur.ResponseBody)
}

// createDeployment posts the deployment request and returns the location of
// the created deployment. The redirect is read, not followed, which is why
// the request goes through the transport directly.
func createDeployment(c *Configuration, deploymentURL *url.URL, data url.Values) (string, error) {
	req, err := http.NewRequest("POST", deploymentURL.String(), bytes.NewBufferString(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set(apiTokenHeaderName, c.ApiToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return "", UnexpectedResponse{resp.StatusCode, string(body)}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("createDeployment: no Location header in response")
	}
	return location, nil
}

func buildDeploymentData(target, sha, branch, comment string) url.Values {
	data := url.Values{}
	data.Set("target", target)
	data.Set("commitsha", sha)
	data.Set("branch", branch)
	data.Set("comment", comment)
	return data
}

func buildDeploymentURL(hostURL, applicationName string) (*url.URL, error) {
	u, err := url.Parse(hostURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(applicationName, "deployments")
	return u, nil
}

func buildDeploymentLogURL(hostURL, deploymentPath string) (*url.URL, error) {
	u, err := url.Parse(hostURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(deploymentPath, "log")

	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	return u, nil
}

func buildDeploymentKillURL(hostURL, deploymentPath string) (*url.URL, error) {
	u, err := url.Parse(hostURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(deploymentPath, "kill")
	return u, nil
}

func killDeployment(c *Configuration, deploymentKillURL *url.URL) error {
	req, err := http.NewRequest("POST", deploymentKillURL.String(), &bytes.Buffer{})
	if err != nil {
		return err
	}
	req.Header.Set(apiTokenHeaderName, c.ApiToken)

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kill request rejected with status %d", resp.StatusCode)
	}
	return nil
}
