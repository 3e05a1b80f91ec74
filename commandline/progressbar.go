/*
 *	Copyright 2025 The scinet Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package commandline displays training progress on the terminal: a progress
// bar over the epochs of a run, annotated with the latest train loss.
package commandline

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/floats"

	"github.com/scinetml/scinet/model"
)

// ProgressBarName identifies the hooks the progress bar registers.
const ProgressBarName = "scinet.commandline.progressBar"

// ProgressbarStyle to use. Defaults to the ASCII version. Consider
// "progressbar.ThemeUnicode" for a prettier version, if the graphical
// symbols are supported.
var ProgressbarStyle = progressbar.ThemeASCII

// refreshPeriod throttles terminal updates.
const refreshPeriod = 100 * time.Millisecond

type progressBar struct {
	numEpochs int
	writer    io.Writer
	bar       *progressbar.ProgressBar
}

// AttachProgressBar attaches a terminal progress bar to the model's training
// hooks: every run of the given number of epochs displays progression and
// the latest train loss. Nothing is returned, the bar lives on the model.
func AttachProgressBar(m *model.Model, epochs int) {
	attachProgressBar(m, epochs, os.Stdout)
}

func attachProgressBar(m *model.Model, epochs int, w io.Writer) {
	pBar := &progressBar{numEpochs: epochs, writer: w}
	m.OnEvent(model.TrainBegin, ProgressBarName, 0, pBar.onStart)
	m.OnEvent(model.EpochEnd, ProgressBarName, 0, pBar.onEpoch)
	m.OnEvent(model.TrainEnd, ProgressBarName, 0, pBar.onEnd)
}

func (pBar *progressBar) onStart(*model.TrainState) {
	pBar.bar = progressbar.NewOptions(pBar.numEpochs,
		progressbar.OptionSetDescription(
			fmt.Sprintf("Training (%s epochs)", humanize.Comma(int64(pBar.numEpochs)))),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("epochs"),
		progressbar.OptionThrottle(refreshPeriod),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar.writer),
	)
}

func (pBar *progressBar) onEpoch(state *model.TrainState) {
	if pBar.bar == nil || pBar.bar.IsFinished() {
		return
	}
	if len(state.LossTrain) > 0 {
		pBar.bar.Describe(fmt.Sprintf("Training (%s epochs, loss=%.3g)",
			humanize.Comma(int64(pBar.numEpochs)), floats.Sum(state.LossTrain)))
	}
	_ = pBar.bar.Add(1)
}

func (pBar *progressBar) onEnd(*model.TrainState) {
	if pBar.bar == nil {
		return
	}
	_ = pBar.bar.Finish()
	fmt.Fprintln(pBar.writer)
}
