// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/snapfs-project/snapfs/internal/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	textTraceString   = "^time=\"[a-zA-Z0-9/:. ]{26}\" severity=TRACE message=\"TestLogs: www.traceExample.com\""
	textDebugString   = "^time=\"[a-zA-Z0-9/:. ]{26}\" severity=DEBUG message=\"TestLogs: www.debugExample.com\""
	textInfoString    = "^time=\"[a-zA-Z0-9/:. ]{26}\" severity=INFO message=\"TestLogs: www.infoExample.com\""
	textWarningString = "^time=\"[a-zA-Z0-9/:. ]{26}\" severity=WARNING message=\"TestLogs: www.warningExample.com\""
	textErrorString   = "^time=\"[a-zA-Z0-9/:. ]{26}\" severity=ERROR message=\"TestLogs: www.errorExample.com\""

	jsonTraceString   = "^\\{\"timestamp\":\\{\"seconds\":\\d+,\"nanos\":\\d+\\},\"severity\":\"TRACE\",\"message\":\"TestLogs: www.traceExample.com\"\\}"
	jsonDebugString   = "^\\{\"timestamp\":\\{\"seconds\":\\d+,\"nanos\":\\d+\\},\"severity\":\"DEBUG\",\"message\":\"TestLogs: www.debugExample.com\"\\}"
	jsonInfoString    = "^\\{\"timestamp\":\\{\"seconds\":\\d+,\"nanos\":\\d+\\},\"severity\":\"INFO\",\"message\":\"TestLogs: www.infoExample.com\"\\}"
	jsonWarningString = "^\\{\"timestamp\":\\{\"seconds\":\\d+,\"nanos\":\\d+\\},\"severity\":\"WARNING\",\"message\":\"TestLogs: www.warningExample.com\"\\}"
	jsonErrorString   = "^\\{\"timestamp\":\\{\"seconds\":\\d+,\"nanos\":\\d+\\},\"severity\":\"ERROR\",\"message\":\"TestLogs: www.errorExample.com\"\\}"
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectLogsToGivenBuffer(buf *bytes.Buffer, severity string) {
	defaultLoggerFactory.prefix = "TestLogs: "
	v := programLevelVar(severity)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, v, "TestLogs: "))
}

func fetchLogOutputForSpecifiedSeverityLevel(severity string, functions []func()) []string {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, severity)

	var output []string
	for _, f := range functions {
		f()
		output = append(output, buf.String())
		buf.Reset()
	}
	return output
}

func getTestLoggingFunctions() []func() {
	return []func(){
		func() { Tracef("www.traceExample.com") },
		func() { Debugf("www.debugExample.com") },
		func() { Infof("www.infoExample.com") },
		func() { Warnf("www.warningExample.com") },
		func() { Errorf("www.errorExample.com") },
	}
}

func validateOutput(t *testing.T, expected []string, output []string) {
	for i := range output {
		if expected[i] == "" {
			assert.Equal(t, expected[i], output[i])
		} else {
			expectedRegexp := regexp.MustCompile(expected[i])
			assert.True(t, expectedRegexp.MatchString(output[i]), "output was %q", output[i])
		}
	}
}

func validateLogOutputAtSpecifiedFormatAndSeverity(t *testing.T, format string, severity string, expectedOutput []string) {
	defaultLoggerFactory.format = format

	output := fetchLogOutputForSpecifiedSeverityLevel(severity, getTestLoggingFunctions())

	validateOutput(t, expectedOutput, output)
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelOFF() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", cfg.OFF, []string{"", "", "", "", ""})
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelERROR() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", cfg.ERROR, []string{"", "", "", "", textErrorString})
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelWARNING() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", cfg.WARNING, []string{"", "", "", textWarningString, textErrorString})
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelINFO() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", cfg.INFO, []string{"", "", textInfoString, textWarningString, textErrorString})
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelDEBUG() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", cfg.DEBUG, []string{"", textDebugString, textInfoString, textWarningString, textErrorString})
}

func (t *LoggerTest) TestTextFormatLogs_LogLevelTRACE() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "text", cfg.TRACE, []string{textTraceString, textDebugString, textInfoString, textWarningString, textErrorString})
}

func (t *LoggerTest) TestJSONFormatLogs_LogLevelOFF() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "json", cfg.OFF, []string{"", "", "", "", ""})
}

func (t *LoggerTest) TestJSONFormatLogs_LogLevelERROR() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "json", cfg.ERROR, []string{"", "", "", "", jsonErrorString})
}

func (t *LoggerTest) TestJSONFormatLogs_LogLevelINFO() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "json", cfg.INFO, []string{"", "", jsonInfoString, jsonWarningString, jsonErrorString})
}

func (t *LoggerTest) TestJSONFormatLogs_LogLevelTRACE() {
	validateLogOutputAtSpecifiedFormatAndSeverity(t.T(), "json", cfg.TRACE, []string{jsonTraceString, jsonDebugString, jsonInfoString, jsonWarningString, jsonErrorString})
}

func (t *LoggerTest) TestSetLoggingLevel() {
	testData := []struct {
		inputSeverity string
		expectedLevel slog.Level
	}{
		{cfg.TRACE, LevelTrace},
		{cfg.DEBUG, LevelDebug},
		{cfg.INFO, LevelInfo},
		{cfg.WARNING, LevelWarn},
		{cfg.ERROR, LevelError},
		{cfg.OFF, LevelOff},
	}

	for _, test := range testData {
		v := new(slog.LevelVar)
		setLoggingLevel(test.inputSeverity, v)
		assert.Equal(t.T(), test.expectedLevel, v.Level())
	}
}

func (t *LoggerTest) TestInit() {
	err := Init(cfg.LoggingConfig{Severity: cfg.DEBUG, Format: "json"})

	assert.NoError(t.T(), err)
	assert.Equal(t.T(), "json", defaultLoggerFactory.format)
	assert.Equal(t.T(), cfg.DEBUG, defaultLoggerFactory.level)
}
