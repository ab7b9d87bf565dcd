package tools

import (
	"strings"
	"testing"
)

func argsContain(t *testing.T, args []string, want ...string) {
	t.Helper()

	joined := strings.Join(args, " ")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Errorf("args missing %q in: %s", w, joined)
		}
	}
}

func TestBuildImageArgsNative(t *testing.T) {
	args := buildImageArgs(ImageBuild{
		Recipe:     "Dockerfile",
		ContextDir: "/proj",
		Tag:        "app:1.0.0",
	})

	argsContain(t, args, "buildx build", "--file Dockerfile", "--tag app:1.0.0", "--load")
	if args[len(args)-1] != "/proj" {
		t.Errorf("context should be the final arg, got %q", args[len(args)-1])
	}
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "--platform") {
		t.Errorf("native build must not set a platform: %s", joined)
	}
	if strings.Contains(joined, "SOURCE_DATE_EPOCH") {
		t.Errorf("non-reproducible build must not pin the epoch: %s", joined)
	}
}

func TestBuildImageArgsReproduciblePiped(t *testing.T) {
	args := buildImageArgs(ImageBuild{
		Recipe:     "Dockerfile",
		ContextTar: "/cache/context.tar",
		Platform:   "linux/riscv64",
		Tag:        "app:1.0.0",
		Epoch:      "0",
		OCIOutput:  "/cache/oci-image.tar",
	})

	argsContain(t, args,
		"--platform linux/riscv64",
		"--build-arg SOURCE_DATE_EPOCH=0",
		"--output type=oci,dest=/cache/oci-image.tar",
	)
	if args[len(args)-1] != "-" {
		t.Errorf("piped context should end with -, got %q", args[len(args)-1])
	}
	if strings.Contains(strings.Join(args, " "), "--load") {
		t.Error("OCI output must not also load the image")
	}
}

func TestBuildImageArgsSortsBuildArgs(t *testing.T) {
	spec := ImageBuild{
		ContextDir: ".",
		BuildArgs:  map[string]string{"ZULU": "1", "ALPHA": "2", "MIKE": "3"},
	}

	first := strings.Join(buildImageArgs(spec), " ")
	for i := 0; i < 10; i++ {
		if got := strings.Join(buildImageArgs(spec), " "); got != first {
			t.Fatalf("arg order unstable:\n%s\n%s", first, got)
		}
	}
	if strings.Index(first, "ALPHA") > strings.Index(first, "ZULU") {
		t.Errorf("build args not sorted: %s", first)
	}
}

func TestHostArchiveArgs(t *testing.T) {
	args := hostArchiveArgs(Archive{
		Root:     "/proj",
		Manifest: "/tmp/manifest",
		Output:   "/cache/context.tar",
	})

	argsContain(t, args,
		"--create",
		"--file /cache/context.tar",
		"--directory /proj",
		"--files-from /tmp/manifest",
		"--mtime=@0",
		"--owner=0 --group=0 --numeric-owner",
	)
}

func TestContainerArchiveArgsMountsAllThree(t *testing.T) {
	args := containerArchiveArgs(Archive{
		Root:     "/proj",
		Manifest: "/tmp/mf/manifest",
		Output:   "/cache/t/context.tar",
	})

	argsContain(t, args,
		"/proj:/work:ro",
		"/tmp/mf:/manifest:ro",
		"/cache/t:/out",
		"--file /out/context.tar",
		"--files-from /manifest/manifest",
		"--mtime=@0",
	)
}

func TestSnapshotArgs(t *testing.T) {
	args := snapshotArgs(Snapshot{
		RootfsImage: "/cache/k/rootfs.squashfs",
		BootArgs:    "quiet",
		Memory:      "512M",
		MaxCycles:   "1000000",
		SnapshotDir: "/cache/k/snapshot",
	}, "ghcr.io/sofmeright/snapforge-machine:latest")

	argsContain(t, args,
		"/cache/k:/input:ro",
		"/cache/k:/output",
		"cartesi-machine",
		"--flash-drive=label:root,filename:/input/rootfs.squashfs",
		"--ram-length=512M",
		"--append-bootargs=quiet",
		"--max-mcycle=1000000",
		"--store=/output/snapshot",
	)
}

func TestSealAndVerifyArgsSharedOffset(t *testing.T) {
	seal := sealArgs(Seal{
		Image:      "/cache/k/machine.img",
		HashOffset: 4096,
		Salt:       "00112233445566778899aabbccddeeff",
		UUID:       "00112233-4455-6677-8899-aabbccddeeff",
	}, "backend:latest")

	argsContain(t, seal,
		"veritysetup format",
		"/work/machine.img /work/machine.img",
		"--hash-offset=4096",
		"--salt=00112233445566778899aabbccddeeff",
		"--uuid=00112233-4455-6677-8899-aabbccddeeff",
	)

	verify := verifyArgs(Verify{
		Image:      "/cache/k/machine.img",
		HashOffset: 4096,
		RootHash:   "deadbeef",
	}, "backend:latest")

	argsContain(t, verify, "veritysetup verify", "deadbeef", "--hash-offset=4096")
}

func TestParseRootHash(t *testing.T) {
	out := `VERITY header information for /work/machine.img
UUID:            00112233-4455-6677-8899-aabbccddeeff
Hash type:       1
Data blocks:     256
Root hash:      9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
`
	got := parseRootHash(out)
	want := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if got != want {
		t.Errorf("parseRootHash = %q, want %q", got, want)
	}

	if parseRootHash("no hash here\n") != "" {
		t.Error("parseRootHash should return empty for missing hash")
	}
}

func TestCompressArgs(t *testing.T) {
	args := compressArgs(Compress{
		InputTar: "/cache/k/boot-bundle.tar",
		Output:   "/cache/k/rootfs.squashfs",
		Epoch:    "0",
	})
	argsContain(t, args, "- /cache/k/rootfs.squashfs -tar", "-mkfs-time 0", "-all-time 0")
}

func TestCompressArgsDirectoryInput(t *testing.T) {
	args := compressArgs(Compress{
		InputDir: "/cache/k/snapshot",
		Output:   "/cache/k/machine.img",
		Epoch:    "0",
	})
	argsContain(t, args, "/cache/k/snapshot /cache/k/machine.img -noappend", "-all-root")
	if strings.Contains(strings.Join(args, " "), "-tar") {
		t.Error("directory input must not use tar mode")
	}
}

func TestContainerCompressArgs(t *testing.T) {
	args := containerCompressArgs(Compress{
		InputTar: "/cache/k/boot-bundle.tar",
		Output:   "/cache/k/rootfs.squashfs",
		Epoch:    "0",
	}, "ghcr.io/sofmeright/snapforge-machine:latest")

	argsContain(t, args,
		"run --rm --interactive",
		"--volume /cache/k:/out",
		"mksquashfs - /out/rootfs.squashfs -tar",
		"-mkfs-time 0",
	)

	args = containerCompressArgs(Compress{
		InputDir: "/cache/k/snapshot",
		Output:   "/cache/k/machine.img",
		Epoch:    "0",
	}, "ghcr.io/sofmeright/snapforge-machine:latest")

	argsContain(t, args,
		"--volume /cache/k/snapshot:/in:ro",
		"mksquashfs /in /out/machine.img -noappend",
	)
	if strings.Contains(strings.Join(args, " "), "--interactive") {
		t.Error("directory input needs no stdin attachment")
	}
}

func TestFakeRunnerRecordsInOrder(t *testing.T) {
	f := &FakeRunner{}
	ctx := t.Context()

	if _, err := f.BuildImage(ctx, ImageBuild{Tag: "a:1"}); err != nil {
		t.Fatalf("BuildImage: %v", err)
	}
	if err := f.ArchiveContext(ctx, Archive{Output: "c.tar"}); err != nil {
		t.Fatalf("ArchiveContext: %v", err)
	}
	root, err := f.SealImage(ctx, Seal{})
	if err != nil {
		t.Fatalf("SealImage: %v", err)
	}
	if len(root) != 64 {
		t.Errorf("default fake root hash length = %d, want 64", len(root))
	}

	want := []string{"BuildImage", "ArchiveContext", "SealImage"}
	got := f.Methods()
	if len(got) != len(want) {
		t.Fatalf("Methods() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}
