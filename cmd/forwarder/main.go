// Copyright 2015 trivago GmbH
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

package main

import (
	"flag"
	"os"
	"runtime"

	log "github.com/sirupsen/logrus"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/trivago/mqtt-kafka-bridge/internal/supervisor"
)

// defaultWorkerThreads mirrors the originating service's
// #[tokio::main(worker_threads = 8)] tuning: a small, fixed pool is enough
// for this workload's per-message goroutines, so GOMAXPROCS is capped here
// rather than left at whatever the host happens to report.
const defaultWorkerThreads = 8

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Infof)); err != nil {
		log.WithError(err).Warn("failed to set GOMAXPROCS")
	}
	if runtime.GOMAXPROCS(0) > defaultWorkerThreads {
		runtime.GOMAXPROCS(defaultWorkerThreads)
	}

	configFlag := flag.String("config", envOr("CONFIG_FILE", "config.yaml"), "path to the forwarding rule configuration file")
	httpAddrFlag := flag.String("http", ":8080", "address to serve the root/health/metrics endpoints on")
	logLevelFlag := flag.String("loglevel", "info", "log level: debug, info, warn, error")
	flag.Parse()

	level, err := log.ParseLevel(*logLevelFlag)
	if err != nil {
		log.WithError(err).Fatal("invalid loglevel")
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	opts := supervisor.Options{
		ConfigPath: *configFlag,
		HTTPAddr:   *httpAddrFlag,
	}

	if err := supervisor.Run(opts); err != nil {
		log.WithError(err).Fatal("forwarding bridge exited")
	}
}

func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return fallback
}
